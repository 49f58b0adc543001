package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// ListOthers は自分以外の全ユーザーを返す。連絡先追加の候補一覧に使う。
	ListOthers(ctx context.Context, selfID string) ([]model.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// sessions、contacts、messagesは一括削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// profileResponse は他ユーザーに公開されるプロフィール。
type profileResponse struct {
	ID          string     `json:"id"`
	Nickname    string     `json:"nickname"`
	AvatarGlyph string     `json:"avatar_glyph"`
	IsOnline    bool       `json:"is_online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

func toProfileResponse(p model.UserProfile) profileResponse {
	return profileResponse{
		ID:          p.ID,
		Nickname:    p.DisplayName,
		AvatarGlyph: p.AvatarGlyph,
		IsOnline:    p.IsOnline,
		LastSeenAt:  p.LastSeenAt,
	}
}

type updateProfileRequest struct {
	Nickname        *string `json:"nickname"`
	AvatarGlyph     *string `json:"avatar_glyph"`
	ThemePreference *string `json:"theme_preference"`
}

// ListUsers は自分以外のユーザー一覧を返す。
// GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	profiles, err := h.service.ListOthers(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// UpdateProfile はニックネーム・アバター・テーマを更新する。
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), userID, user.ProfileUpdate{
		Nickname:        req.Nickname,
		AvatarGlyph:     req.AvatarGlyph,
		ThemePreference: req.ThemePreference,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
