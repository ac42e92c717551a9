package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/tracing"
)

// RequestIDHeader carries the trace id in and out of the service.
const RequestIDHeader = "X-Request-ID"

// Trace starts a root span per request, keyed by the caller's request id
// when it sent one, and logs the span tree once the handler returns.
func Trace(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(RequestIDHeader)
			if traceID == "" {
				traceID = tracing.NewTraceID()
			}
			w.Header().Set(RequestIDHeader, traceID)
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()
			span.Log(logger)
		})
	}
}
