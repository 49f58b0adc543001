package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/hitoshi/messenger/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvに読み込む。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, r, model.NewInvalidRequestError())
		return false
	}
	return true
}

// currentUserID は認証済みユーザーIDを返す。取得できない場合は401を書き込みfalseを返す。
func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層のエラーをレスポンスに変換する。
// APIError以外は詳細をログにのみ残し500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteError(w, r, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", chimw.GetReqID(r.Context())),
	)
	middleware.WriteInternalError(w, r)
}
