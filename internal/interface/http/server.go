// Package http implements the REST API of the course marketplace core.
// Every operation of the catalog, payment, enrollment, progress and access
// components is exposed as JSON over HTTP; callers are identified by headers
// set by the upstream identity collaborator.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/application/command"
	"github.com/coursehub/coursehub-core/internal/application/query"
	"github.com/coursehub/coursehub-core/internal/interface/http/handlers"
	"github.com/coursehub/coursehub-core/pkg/logger"
)

// Config contains HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes rejects larger request bodies with 413; 0 disables.
	MaxBodyBytes int64

	// AllowedOrigins lists CORS origins; "*" allows any, empty disables CORS.
	AllowedOrigins []string

	// RateLimitPerMinute caps requests per client IP; 0 disables.
	RateLimitPerMinute int

	// Version is reported by the root and health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 600,
		Version:            "v1",
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command Handlers (CQRS Write Side)
	CreateCourse       *command.CreateCourseHandler
	AddModule          *command.AddModuleHandler
	AddLesson          *command.AddLessonHandler
	Reorder            *command.ReorderHandler
	SubmitPayment      *command.SubmitPaymentHandler
	ReviewPayment      *command.ReviewPaymentHandler
	StartEnrollment    *command.StartEnrollmentHandler
	MarkLessonComplete *command.MarkLessonCompleteHandler

	// Query Handlers (CQRS Read Side)
	CourseStructure *query.GetCourseStructureHandler
	Enrollments     *query.EnrollmentQueries
	Progress        *query.GetProgressHandler
	Access          *query.CanAccessLessonHandler
	Payments        *query.PaymentQueries

	// Logger
	Logger *logger.Logger

	// Health Check Dependencies
	HealthChecker handlers.HealthChecker
}

// Server serves the REST API.
type Server struct {
	config    Config
	deps      Dependencies
	mux       *http.ServeMux
	handler   http.Handler
	srv       *http.Server
	logger    *logger.Logger
	validate  *validator.Validate
	limiter   *rateLimiter
	startedAt time.Time
}

// NewServer wires routes and middleware. Nothing listens until Start.
func NewServer(config Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		config:    config,
		deps:      deps,
		mux:       http.NewServeMux(),
		logger:    log.With(logger.Component("http")),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		startedAt: time.Now(),
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.routes()
	s.handler = s.middleware()(s.mux)
	s.srv = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the routed handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	for pattern, h := range map[string]http.HandlerFunc{
		"GET /{$}":     s.handleRoot,
		"GET /health":  s.handleHealth,
		"GET /healthz": s.handleHealth,
		"GET /ready":   s.handleReady,
		"GET /live":    s.handleLive,

		"POST /api/v1/courses":                   s.handleCreateCourse,
		"GET /api/v1/courses/{id}":               s.handleGetCourse,
		"POST /api/v1/courses/{id}/modules":      s.handleAddModule,
		"PUT /api/v1/courses/{id}/modules/order": s.handleReorderModules,
		"POST /api/v1/modules/{id}/lessons":      s.handleAddLesson,
		"PUT /api/v1/modules/{id}/lessons/order": s.handleReorderLessons,
		"POST /api/v1/courses/{id}/enrollments":  s.handleStartEnrollment,
		"GET /api/v1/courses/{id}/enrollment":    s.handleGetEnrollment,
		"GET /api/v1/enrollments":                s.handleListEnrollments,
		"GET /api/v1/enrollments/{id}/progress":  s.handleGetProgress,
		"GET /api/v1/lessons/{id}/access":        s.handleCanAccessLesson,
		"POST /api/v1/courses/{id}/payments":     s.handleSubmitPayment,
		"GET /api/v1/courses/{id}/payments":      s.handleListPayments,
		"GET /api/v1/payments/pending":           s.handleListPendingPayments,
		"GET /api/v1/payments/{id}":              s.handleGetPayment,
		"POST /api/v1/payments/{id}/approve":     s.handleApprovePayment,
		"POST /api/v1/payments/{id}/reject":      s.handleRejectPayment,

		"POST /api/v1/enrollments/{id}/lessons/{lessonId}/complete": s.handleMarkLessonComplete,
	} {
		s.mux.HandleFunc(pattern, h)
	}
}

// middleware lists the chain outermost first.
func (s *Server) middleware() handlers.Middleware {
	var chain []handlers.Middleware
	if s.limiter != nil {
		chain = append(chain, s.limitRate)
	}
	if len(s.config.AllowedOrigins) > 0 {
		chain = append(chain, s.cors)
	}
	chain = append(chain, s.withRequestID, s.logRequests, s.recoverPanics, handlers.SecurityHeaders)
	if s.config.MaxBodyBytes > 0 {
		chain = append(chain, handlers.LimitBody(s.config.MaxBodyBytes))
	}
	return handlers.Chain(append(chain, handlers.Identity)...)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log := logger.FromContext(r.Context())
		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Latency(time.Since(start)),
			logger.String("ip", clientIP(r)),
		}
		if rec.status >= http.StatusInternalServerError {
			log.Error("request completed", fields...)
		} else {
			log.Info("request completed", fields...)
		}
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.FromContext(r.Context()).Error("panic recovered",
					logger.Any("panic", v),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", "X-Request-ID", handlers.HeaderUserID, handlers.HeaderUserRole}, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) limitRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r), time.Now()) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", logger.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields its error, if
// any, and is then closed.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Count     int       `json:"count,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// writeJSON writes a success response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSONWithMeta(w, r, status, data, nil)
}

// writeJSONWithMeta writes a success response with custom metadata.
func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data interface{}, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	writeResponse(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, r, status, &APIError{Code: code, Message: message})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	writeResponse(w, status, JSONResponse{
		Success:   false,
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

func writeResponse(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type requestIDKey struct{}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// clientIP prefers the first X-Forwarded-For hop set by the proxy in front.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// getQueryParamInt reads a non-negative integer, falling back to def.
func getQueryParamInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// rateLimiter counts requests per key in fixed windows. Stale windows are
// dropped lazily once the map grows past a few thousand keys.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	count int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window, buckets: make(map[string]*bucket)}
}

func (rl *rateLimiter) Allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.start) >= rl.window {
		if len(rl.buckets) > 4096 {
			rl.sweep(now)
		}
		b = &bucket{start: now}
		rl.buckets[key] = b
	}
	if b.count >= rl.limit {
		return false
	}
	b.count++
	return true
}

func (rl *rateLimiter) sweep(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.start) >= rl.window {
			delete(rl.buckets, k)
		}
	}
}
