package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-core/internal/domain/notification"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

func testNotification() *notification.Notification {
	return &notification.Notification{
		ID:          "n-1",
		EventType:   shared.EventPaymentApproved,
		RecipientID: "student-1",
		Subject:     "Payment approved",
		Body:        "Course c1 is now unlocked.",
		Data:        map[string]interface{}{"course_id": "c1"},
		OccurredAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestWebhookSender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var got notification.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "payment.approved", r.Header.Get("X-Event-Type"))
		assert.Equal(t, "n-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(WebhookConfig{URL: srv.URL, Secret: "s3cret", Timeout: time.Second, MaxAttempts: 3}, nil)
	result := sender.Send(context.Background(), testNotification())

	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, notification.ChannelWebhook, result.Channel)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "student-1", got.RecipientID)
	assert.Equal(t, "c1", got.Data["course_id"])
}

func TestWebhookSender_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sender := NewWebhookSender(WebhookConfig{URL: srv.URL, Timeout: time.Second, MaxAttempts: 3}, nil)
	result := sender.Send(context.Background(), testNotification())

	assert.False(t, result.Success)
	assert.False(t, result.Retryable)
	assert.ErrorContains(t, result.Error, "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookSender_ExhaustedRetriesAreRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewWebhookSender(WebhookConfig{URL: srv.URL, Timeout: time.Second, MaxAttempts: 2}, nil)
	result := sender.Send(context.Background(), testNotification())

	assert.False(t, result.Success)
	assert.True(t, result.Retryable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLogSender(t *testing.T) {
	result := NewLogSender(nil).Send(context.Background(), testNotification())
	assert.True(t, result.Success)
	assert.Equal(t, notification.ChannelLog, result.Channel)
}
