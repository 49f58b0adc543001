// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/messenger/internal/model"
)

// SessionCookieName はセッションIDを保持するHttpOnly Cookieの名前。
const SessionCookieName = "session_id"

// ErrNoCurrentUser はコンテキストに認証済みユーザーが無いことを表す。
var ErrNoCurrentUser = errors.New("user ID not found in context")

var errNoSession = errors.New("no valid session")

type ctxKey int

const currentUserKey ctxKey = iota

// SessionFinder はrepository.SessionRepositoryのうちミドルウェアが使う部分。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はセッションCookieを検証し、ユーザーIDをコンテキストに載せる。
// Cookieが無い、セッションが無いか期限切れ、または検索に失敗した場合は401を返す。
func NewSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := lookupSession(r, finder, time.Now())
			if err != nil {
				if !errors.Is(err, errNoSession) {
					slog.Error("セッションの検索に失敗しました",
						slog.String("error", err.Error()),
						slog.String("request_id", chimw.GetReqID(r.Context())),
					)
				}
				WriteError(w, r, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), session.UserID)))
		})
	}
}

// lookupSession はCookieのセッションIDを解決する。
// リポジトリの実装によらず、now時点で期限切れのセッションはerrNoSessionとする。
func lookupSession(r *http.Request, finder SessionFinder, now time.Time) (*model.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, errNoSession
	}
	session, err := finder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.ExpiresAt.After(now) {
		return nil, errNoSession
	}
	return session, nil
}

// UserIDFromContext はセッションミドルウェアが載せたユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	if userID, _ := ctx.Value(currentUserKey).(string); userID != "" {
		return userID, nil
	}
	return "", ErrNoCurrentUser
}

// ContextWithUserID はユーザーIDを載せたコンテキストを返す。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, currentUserKey, userID)
}
