package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/messenger/internal/model"
)

const (
	// csrfCookieName はダブルサブミット用トークンのCookie名。JSから読めるようHttpOnlyにしない。
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"

	defaultCSRFMaxAge = 86400
)

var (
	errCSRFNoCookie = errors.New("missing cookie token")
	errCSRFNoHeader = errors.New("missing header token")
	errCSRFMismatch = errors.New("token mismatch")
)

// CSRFConfig はCSRFトークンCookieの属性。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒。0の場合は86400
}

func (c CSRFConfig) maxAge() int {
	if c.MaxAge > 0 {
		return c.MaxAge
	}
	return defaultCSRFMaxAge
}

// NewCSRFMiddleware はダブルサブミットCookie方式でCSRFを検証する。
// GET・HEAD・OPTIONSは検証せず、トークンCookieが無ければ発行だけ行う。
// それ以外のメソッドはCookieとX-CSRF-Tokenヘッダーの一致を要求し、不一致は403にする。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, err := ensureCSRFCookie(w, r, config); err != nil {
					slog.Error("CSRFトークンの生成に失敗しました", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			if err := verifyCSRF(r); err != nil {
				slog.Warn("CSRF validation failed",
					slog.String("reason", err.Error()),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteError(w, r, model.NewCSRFFailedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はGET /api/csrf-tokenのハンドラー。
// 既存のトークンCookieがあればその値を、無ければ新たに発行した値を{"token": ...}で返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ensureCSRFCookie(w, r, config)
		if err != nil {
			slog.Error("CSRFトークンの生成に失敗しました", slog.String("error", err.Error()))
			WriteInternalError(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"token": token}); err != nil {
			slog.Error("failed to encode CSRF token response", slog.String("error", err.Error()))
		}
	})
}

// verifyCSRF はCookieとヘッダーのトークンを定数時間で比較する。
func verifyCSRF(r *http.Request) error {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return errCSRFNoCookie
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return errCSRFNoHeader
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return errCSRFMismatch
	}
	return nil
}

// ensureCSRFCookie はリクエストのトークンCookieを返す。無い場合は生成してSet-Cookieする。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) (string, error) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.maxAge(),
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
