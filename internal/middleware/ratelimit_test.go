package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stagepass/audioscan/internal/domain/scans"
)

func TestRateLimiter_PerCallerBuckets(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, time.Minute)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(callerID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/scans/x", nil)
		req = req.WithContext(WithCaller(req.Context(), scans.Caller{ID: callerID}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("a").Code)
	assert.Equal(t, http.StatusNoContent, do("a").Code)
	limited := do("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	// other callers have their own bucket
	assert.Equal(t, http.StatusNoContent, do("b").Code)
}

func TestRateLimiter_FallsBackToIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	assert.Equal(t, "203.0.113.9", clientIP(req))
	assert.True(t, rl.Allow(clientIP(req)))
	assert.False(t, rl.Allow(clientIP(req)))
}
