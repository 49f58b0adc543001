package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler は /health のハンドラーを返す。
// checkerがnilの場合は常に200を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
