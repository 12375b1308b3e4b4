package middleware

import (
	"net/http"
	"time"

	"storefront/internal/metrics"

	"github.com/go-chi/chi/v5/middleware"
)

// MetricsMiddleware records request counts and latencies by route pattern
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(r.Method, routePattern(r), status, time.Since(start))
		})
	}
}
