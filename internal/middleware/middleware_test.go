package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bookmate/bookmate/internal/logging"
)

func TestCORS(t *testing.T) {
	var s seen
	h := CORS([]string{"https://app.bookmate.example", "*.preview.example"})(capture(&s))

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.bookmate.example", true},
		{"https://pr-12.preview.example", true},
		{"https://evil-app.bookmate.example", false},
		{"https://preview.example.attacker", false},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/pnl", nil)
		req.Header.Set("Origin", c.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if c.allowed {
			assert.Equal(t, c.origin, rec.Header().Get("Access-Control-Allow-Origin"), c.origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), c.origin)
		}
	}

	s.called = false
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pnl", nil)
	req.Header.Set("Origin", "https://app.bookmate.example")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, corsMethods, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.False(t, s.called)
}

func TestRateLimiterPerTenant(t *testing.T) {
	var s seen
	rl := NewRateLimiter(1, 2, nil)
	h := rl.Handler(capture(&s))

	send := func(tenant string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/pnl", nil)
		if tenant != "" {
			req = req.WithContext(logging.WithTenantID(req.Context(), tenant))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("acme"))
	assert.Equal(t, http.StatusOK, send("acme"))
	assert.Equal(t, http.StatusTooManyRequests, send("acme"))
	assert.Equal(t, http.StatusOK, send("beta"))
	assert.Equal(t, http.StatusOK, send(""))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.getLimiter("old")
	now = now.Add(time.Hour)
	rl.getLimiter("fresh")

	assert.Equal(t, 1, rl.Cleanup(30*time.Minute))
	assert.Len(t, rl.limiters, 1)
}

func TestTracingPropagatesTraceID(t *testing.T) {
	var s seen
	h := Tracing(nil)(capture(&s))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", rec.Header().Get("X-Trace-ID"))
	assert.Equal(t, "trace-123", s.trace)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req.42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req.42", rec.Header().Get("X-Trace-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "bad id\nforged=1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
	assert.NotContains(t, rec.Header().Get("X-Trace-ID"), " ")
}
