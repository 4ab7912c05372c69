package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"yt-radar/internal/models"
)

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiterMiddleware(0, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(userID int64) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/videos/search", nil)
		user := &models.User{ID: userID}
		return req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
	}

	// Burst of one: the first request passes, the second is throttled.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, request(1))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, request(1))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Limits are per user.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, request(2))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimiterMiddlewareRequiresUser(t *testing.T) {
	rl := NewRateLimiterMiddleware(1, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a user")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/videos/search", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
