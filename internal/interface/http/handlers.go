package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/coursehub/coursehub-core/internal/application/command"
	"github.com/coursehub/coursehub-core/internal/application/query"
	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
	"github.com/coursehub/coursehub-core/internal/interface/http/handlers"
	"github.com/coursehub/coursehub-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type createCourseRequest struct {
	Title    string `json:"title" validate:"required,max=255"`
	Price    int64  `json:"price" validate:"gte=0"`
	Currency string `json:"currency" validate:"required,len=3,uppercase"`
}

type addModuleRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

type addLessonRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	Type            string `json:"type" validate:"required,oneof=video text quiz assignment file"`
	IsFree          bool   `json:"is_free"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

type reorderModulesRequest struct {
	ModuleIDs []string `json:"module_ids" validate:"required,min=1,dive,required"`
}

type reorderLessonsRequest struct {
	LessonIDs []string `json:"lesson_ids" validate:"required,min=1,dive,required"`
}

type submitPaymentRequest struct {
	Amount     int64  `json:"amount" validate:"gt=0"`
	Currency   string `json:"currency" validate:"omitempty,len=3,uppercase"`
	ReceiptRef string `json:"receipt_ref" validate:"required,max=512"`
}

// The reason is checked by the command so a blank one yields the domain error.
type rejectPaymentRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "CourseHub Core API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":      "/health",
			"courses":     "/api/v1/courses",
			"enrollments": "/api/v1/enrollments",
			"payments":    "/api/v1/payments/pending",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Summary)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreateCourse handles POST /api/v1/courses
func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleTeacher)
	if !ok {
		return
	}
	var req createCourseRequest
	if !s.decode(w, r, &req) {
		return
	}

	course, err := s.deps.CreateCourse.Handle(r.Context(), command.CreateCourseCommand{
		TeacherID: p.UserID,
		Title:     req.Title,
		Price:     req.Price,
		Currency:  req.Currency,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.ToCourseDTO(course))
}

// handleGetCourse handles GET /api/v1/courses/{id}
func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.CourseStructure.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleAddModule handles POST /api/v1/courses/{id}/modules
func (s *Server) handleAddModule(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleTeacher)
	if !ok {
		return
	}
	var req addModuleRequest
	if !s.decode(w, r, &req) {
		return
	}

	module, err := s.deps.AddModule.Handle(r.Context(), command.AddModuleCommand{
		TeacherID: p.UserID,
		CourseID:  r.PathValue("id"),
		Title:     req.Title,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.ToModuleDTO(module))
}

// handleReorderModules handles PUT /api/v1/courses/{id}/modules/order
func (s *Server) handleReorderModules(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleTeacher)
	if !ok {
		return
	}
	var req reorderModulesRequest
	if !s.decode(w, r, &req) {
		return
	}

	structure, err := s.deps.Reorder.HandleModules(r.Context(), command.ReorderModulesCommand{
		TeacherID: p.UserID,
		CourseID:  r.PathValue("id"),
		ModuleIDs: req.ModuleIDs,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToCourseStructureDTO(structure))
}

// handleAddLesson handles POST /api/v1/modules/{id}/lessons
func (s *Server) handleAddLesson(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleTeacher)
	if !ok {
		return
	}
	var req addLessonRequest
	if !s.decode(w, r, &req) {
		return
	}

	lesson, err := s.deps.AddLesson.Handle(r.Context(), command.AddLessonCommand{
		TeacherID:       p.UserID,
		ModuleID:        r.PathValue("id"),
		Title:           req.Title,
		Type:            catalog.LessonType(req.Type),
		IsFree:          req.IsFree,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.ToLessonDTO(lesson))
}

// handleReorderLessons handles PUT /api/v1/modules/{id}/lessons/order
func (s *Server) handleReorderLessons(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleTeacher)
	if !ok {
		return
	}
	var req reorderLessonsRequest
	if !s.decode(w, r, &req) {
		return
	}

	structure, err := s.deps.Reorder.HandleLessons(r.Context(), command.ReorderLessonsCommand{
		TeacherID: p.UserID,
		ModuleID:  r.PathValue("id"),
		LessonIDs: req.LessonIDs,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToCourseStructureDTO(structure))
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT & PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleStartEnrollment handles POST /api/v1/courses/{id}/enrollments
func (s *Server) handleStartEnrollment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}

	result, err := s.deps.StartEnrollment.Handle(r.Context(), command.StartEnrollmentCommand{
		StudentID: p.UserID,
		CourseID:  r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, query.ToEnrollmentDTO(result.Enrollment))
}

// handleGetEnrollment handles GET /api/v1/courses/{id}/enrollment
func (s *Server) handleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}

	dto, err := s.deps.Enrollments.Get(r.Context(), query.GetEnrollmentQuery{
		StudentID: p.UserID,
		CourseID:  r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleListEnrollments handles GET /api/v1/enrollments
func (s *Server) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}

	q := query.ListEnrollmentsQuery{
		StudentID: p.UserID,
		Limit:     getQueryParamInt(r, "limit", 50),
		Offset:    getQueryParamInt(r, "offset", 0),
	}
	items, err := s.deps.Enrollments.List(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, items, &ResponseMeta{Count: len(items), Limit: q.Limit, Offset: q.Offset})
}

// handleGetProgress handles GET /api/v1/enrollments/{id}/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}

	snap, err := s.deps.Progress.Handle(r.Context(), query.GetProgressQuery{
		EnrollmentID: r.PathValue("id"),
		StudentID:    p.UserID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// handleMarkLessonComplete handles POST /api/v1/enrollments/{id}/lessons/{lessonId}/complete
func (s *Server) handleMarkLessonComplete(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}

	result, err := s.deps.MarkLessonComplete.Handle(r.Context(), command.MarkLessonCompleteCommand{
		StudentID:    p.UserID,
		EnrollmentID: r.PathValue("id"),
		LessonID:     r.PathValue("lessonId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"progress":         result.Progress,
		"status":           string(result.Status),
		"recorded":         result.Recorded,
		"course_completed": result.CourseCompleted,
	})
}

// handleCanAccessLesson handles GET /api/v1/lessons/{id}/access
func (s *Server) handleCanAccessLesson(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}

	decision, err := s.deps.Access.Handle(r.Context(), p.UserID, r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, decision)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSubmitPayment handles POST /api/v1/courses/{id}/payments
func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}
	var req submitPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.SubmitPayment.Handle(r.Context(), command.SubmitPaymentCommand{
		StudentID:  p.UserID,
		CourseID:   r.PathValue("id"),
		Amount:     req.Amount,
		Currency:   req.Currency,
		ReceiptRef: req.ReceiptRef,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"payment":    query.ToPaymentDTO(result.Payment),
		"enrollment": query.ToEnrollmentDTO(result.Enrollment),
	})
}

// handleListPayments handles GET /api/v1/courses/{id}/payments
func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleStudent)
	if !ok {
		return
	}

	items, err := s.deps.Payments.History(r.Context(), p.UserID, r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, items, &ResponseMeta{Count: len(items)})
}

// handleGetPayment handles GET /api/v1/payments/{id}
func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	dto, err := s.deps.Payments.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !p.Is(shared.RoleReviewer) && dto.StudentID != p.UserID {
		// Foreign payments are reported as missing.
		s.writeDomainError(w, r, shared.ErrPaymentNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleListPendingPayments handles GET /api/v1/payments/pending
func (s *Server) handleListPendingPayments(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, shared.RoleReviewer); !ok {
		return
	}

	limit := getQueryParamInt(r, "limit", 50)
	offset := getQueryParamInt(r, "offset", 0)
	items, err := s.deps.Payments.ListPending(r.Context(), limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, items, &ResponseMeta{Count: len(items), Limit: limit, Offset: offset})
}

// handleApprovePayment handles POST /api/v1/payments/{id}/approve
func (s *Server) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleReviewer)
	if !ok {
		return
	}

	result, err := s.deps.ReviewPayment.Approve(r.Context(), command.ApprovePaymentCommand{
		PaymentID:  r.PathValue("id"),
		ReviewerID: p.UserID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeReview(w, r, result)
}

// handleRejectPayment handles POST /api/v1/payments/{id}/reject
func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, shared.RoleReviewer)
	if !ok {
		return
	}
	var req rejectPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.ReviewPayment.Reject(r.Context(), command.RejectPaymentCommand{
		PaymentID:  r.PathValue("id"),
		ReviewerID: p.UserID,
		Reason:     req.Reason,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeReview(w, r, result)
}

func (s *Server) writeReview(w http.ResponseWriter, r *http.Request, result *command.ReviewPaymentResult) {
	body := map[string]interface{}{"payment": query.ToPaymentDTO(result.Payment)}
	if result.Enrollment != nil {
		body["enrollment"] = query.ToEnrollmentDTO(result.Enrollment)
	}
	writeJSON(w, r, http.StatusOK, body)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (handlers.Principal, bool) {
	p, ok := handlers.PrincipalFrom(r.Context())
	if !ok {
		writeJSONError(w, r, http.StatusUnauthorized, "unauthenticated", "missing "+handlers.HeaderUserID)
		return handlers.Principal{}, false
	}
	return p, true
}

func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, role shared.Role) (handlers.Principal, bool) {
	p, ok := s.requirePrincipal(w, r)
	if !ok {
		return p, false
	}
	if !p.Is(role) {
		writeJSONError(w, r, http.StatusForbidden, "forbidden", "requires role "+string(role))
		return p, false
	}
	return p, true
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, r, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeJSONError(w, r, http.StatusBadRequest, "bad_request", err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeAPIError(w, r, http.StatusUnprocessableEntity, &APIError{
			Code:    "validation_error",
			Message: "request validation failed",
			Fields:  fields,
		})
		return false
	}
	return true
}

// writeDomainError maps the error kinds onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, shared.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, shared.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrValidation):
		status, code = http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, shared.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}

	message := "An unexpected error occurred"
	var de *shared.DomainError
	if errors.As(err, &de) && status != http.StatusServiceUnavailable {
		message = de.Message
	} else if status == http.StatusServiceUnavailable {
		message = "service temporarily unavailable"
	}

	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
	}
	writeJSONError(w, r, status, code, message)
}
