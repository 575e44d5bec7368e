package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"artmarket-api/internal/kv"
	"artmarket-api/internal/observability"
)

type brokenKV struct{}

func (brokenKV) Set(context.Context, string, time.Duration) error { return errors.New("kv down") }
func (brokenKV) Exists(context.Context, string) (bool, error)     { return false, errors.New("kv down") }
func (brokenKV) Delete(context.Context, string) error             { return errors.New("kv down") }
func (brokenKV) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("kv down")
}

func TestLoginRateLimiterBlocksAfterLimit(t *testing.T) {
	limiter := NewLoginRateLimiter(kv.NewMemoryStore(), observability.NewLogger(), 3, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different client is unaffected.
	req = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.1:4242"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRateLimiterFailsOpen(t *testing.T) {
	limiter := NewLoginRateLimiter(brokenKV{}, observability.NewLogger(), 1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
