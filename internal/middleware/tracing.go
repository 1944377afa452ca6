package middleware

import (
	"net/http"
	"time"

	"github.com/bookmate/bookmate/internal/logging"
)

const maxTraceIDLen = 64

// Tracing tags each request with a trace ID, taken from X-Trace-ID or
// X-Request-ID when the caller sent a usable one, echoes it back and logs the
// request once it completes.
func Tracing(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := incomingTraceID(r)
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			w.Header().Set("X-Trace-ID", traceID)

			rec := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))

			logger.LogRequest(ctx, r.Method, r.URL.Path, rec.status(), time.Since(start))
		})
	}
}

func incomingTraceID(r *http.Request) string {
	for _, header := range []string{"X-Trace-ID", "X-Request-ID"} {
		if id := r.Header.Get(header); validTraceID(id) {
			return id
		}
	}
	return ""
}

// validTraceID keeps caller-supplied IDs short and free of characters that
// would corrupt log lines.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}
