package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/swapam/marketplace/internal/logging"
)

// TracingMiddleware assigns every request a trace ID and logs the request on
// completion.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware.
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{logger: logger}
}

// Handler returns the tracing middleware handler.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = logging.NewTraceID()
		}

		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r.WithContext(ctx))

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if pathTemplate, err := route.GetPathTemplate(); err == nil {
				path = pathTemplate
			}
		}

		m.logger.LogRequest(ctx, r.Method, path, rw.statusCode, time.Since(start))
	})
}

// Middleware adapts Handler to gorilla's middleware signature.
func (m *TracingMiddleware) Middleware() mux.MiddlewareFunc {
	return m.Handler
}
