package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/messenger/internal/metrics"
)

// NewMetricsMiddleware はレスポンスのステータスコードを記録する。
func NewMetricsMiddleware(m metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if m == nil {
		m = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			m.RecordHTTPStatus(responseStatus(ww))
		})
	}
}
