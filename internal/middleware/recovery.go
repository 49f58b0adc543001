package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRecoveryMiddleware はハンドラー内のpanicを500 INTERNAL_ERRORに変換する。
// http.ErrAbortHandlerはnet/httpに再送出する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("ハンドラーでpanicが発生しました",
					slog.Any("panic", rec),
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				WriteInternalError(w, r)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
