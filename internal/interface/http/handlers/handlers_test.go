package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	c := NewHealth("1.2.3")
	status := c.Check(context.Background())
	assert.True(t, status.Ready)
	assert.Equal(t, "no health checks registered", status.Summary)

	c.Critical("storage", Ping(pingFunc(func(context.Context) error { return nil })))
	c.Optional("redis", Ping(pingFunc(func(context.Context) error { return errors.New("connection refused") })))

	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready, "an optional failure keeps the service ready")
	assert.Equal(t, "failing: redis", status.Summary)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "connection refused", status.Checks["redis"].Detail)
	assert.True(t, status.Checks["storage"].Critical)

	c.Critical("storage", func(context.Context) error { return errors.New("down") })
	status = c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "failing: redis, storage", status.Summary)
}

func TestHealth_Timeout(t *testing.T) {
	c := NewHealth("v")
	c.SetTimeout(20 * time.Millisecond)
	c.Critical("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Contains(t, status.Checks["slow"].Detail, "deadline")
}

func principalEcho(t *testing.T) (http.Handler, *Principal, *bool) {
	t.Helper()
	var got Principal
	var present bool
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, present = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &got, &present
}

func TestIdentity(t *testing.T) {
	h, got, present := principalEcho(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, " teacher-1 ")
	req.Header.Set(HeaderUserRole, "Teacher")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, *present)
	assert.Equal(t, Principal{UserID: "teacher-1", Role: shared.RoleTeacher}, *got)
	assert.True(t, got.Is(shared.RoleTeacher))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "student-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, shared.RoleStudent, got.Role, "missing role defaults to student")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, *present, "anonymous request")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "x")
	req.Header.Set(HeaderUserRole, "admin")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_role")
}

func TestLimitBody(t *testing.T) {
	h := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("outer"), mark("inner"), SecurityHeaders)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
