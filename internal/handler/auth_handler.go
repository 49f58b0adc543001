// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/messenger/internal/auth"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/hitoshi/messenger/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error)
	Login(ctx context.Context, nickname, password string) (*model.User, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は登録・ログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type registerRequest struct {
	Nickname        string `json:"nickname"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	AvatarGlyph     string `json:"avatar_glyph"`
}

type loginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// userResponse はログインユーザー本人に返すユーザー情報。
type userResponse struct {
	ID              string     `json:"id"`
	Nickname        string     `json:"nickname"`
	AvatarGlyph     string     `json:"avatar_glyph"`
	ThemePreference string     `json:"theme_preference"`
	IsOnline        bool       `json:"is_online"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Nickname:        u.Nickname,
		AvatarGlyph:     u.AvatarGlyph,
		ThemePreference: string(u.ThemePreference),
		IsOnline:        u.IsOnline,
		LastSeenAt:      u.LastSeenAt,
	}
}

// Register はユーザーを新規登録し、セッションCookieを発行する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// 確認欄が省略された場合は同じ値として扱う
	confirm := req.PasswordConfirm
	if confirm == "" {
		confirm = req.Password
	}

	u, session, err := h.service.Register(r.Context(), auth.RegisterInput{
		Nickname:        req.Nickname,
		Password:        req.Password,
		PasswordConfirm: confirm,
		AvatarGlyph:     req.AvatarGlyph,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Login はニックネームとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, session, err := h.service.Login(r.Context(), req.Nickname, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}

	u, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if errors.Is(err, auth.ErrSessionNotFound) {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// setSessionCookie はHTTP OnlyのセッションCookieを設定する。maxAgeが負の場合は削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
