package telemetry

import (
	"net/http"
	"time"

	"github.com/italolelis/fetchbox/internal/logctx"
)

// HTTPLogging logs every request once it completes. 5xx responses log at ERROR,
// 4xx at WARN and everything else at INFO. The request logger carries the
// request_id so handler logs can be correlated.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())
		ctx, logger := logctx.With(r.Context(), "request_id", requestID)
		start := time.Now()

		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		status := wrapped.status
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
