package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/messenger/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// request_idはRequestIDミドルウェアを通過した場合のみ付与される。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor はエラーコードに対応するHTTPステータスを返す。未知のコードは500。
func StatusFor(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodePeerNotFound, model.ErrCodeInvalidPeer, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeNicknameTaken:
		return http.StatusConflict
	case model.ErrCodeInvalidParticipant, model.ErrCodeEmptyContent, model.ErrCodeMessageTooLong:
		return http.StatusUnprocessableEntity
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はapiErrをStatusForのステータスで書き込む。
func WriteError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	if r != nil {
		body.RequestID = chimw.GetReqID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(apiErr))
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalError は500を書き込む。原因はクライアントに返さない。
func WriteInternalError(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, model.NewInternalError())
}
