package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// responseStatus はハンドラーが書き込んだステータスを返す。未書き込みは200とみなす。
func responseStatus(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// levelForStatus は5xxをERROR、4xxをWARN、それ以外をINFOにする。
func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware はリクエストごとに"http_request"を1行出力するミドルウェアを返す。
// セッションミドルウェアより内側に置いた場合のみuser_idが付く。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := responseStatus(ww)
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if userID, err := UserIDFromContext(r.Context()); err == nil {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			logger.LogAttrs(r.Context(), levelForStatus(status), "http_request", attrs...)
		})
	}
}
