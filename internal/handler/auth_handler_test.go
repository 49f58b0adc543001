package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/messenger/internal/auth"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/hitoshi/messenger/internal/model"
)

// --- モック ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, nickname, password string) (*model.User, *model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
	return m.registerFn(ctx, in)
}

func (m *mockAuthService) Login(ctx context.Context, nickname, password string) (*model.User, *model.Session, error) {
	return m.loginFn(ctx, nickname, password)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.getCurrentUserFn(ctx, sessionID)
}

var testAuthConfig = AuthHandlerConfig{
	CookieDomain:  "example.com",
	CookieSecure:  true,
	SessionMaxAge: 3600,
}

func sampleUser() *model.User {
	return &model.User{
		ID:              "user-1",
		Nickname:        "alice",
		AvatarGlyph:     "🐱",
		ThemePreference: model.ThemeDark,
		IsOnline:        true,
	}
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

// --- テスト ---

func TestAuthHandler_Register_SetsCookieAndReturnsUser(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
			got = in
			return sampleUser(), &model.Session{ID: "sess-1", UserID: "user-1"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	w := httptest.NewRecorder()
	h.Register(w, jsonRequest(t, http.MethodPost, "/auth/register", map[string]string{
		"nickname":     "alice",
		"password":     "password123",
		"avatar_glyph": "🐱",
	}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.PasswordConfirm != "password123" {
		t.Errorf("omitted confirmation should default to password, got %q", got.PasswordConfirm)
	}

	c := sessionCookie(t, w)
	if c.Value != "sess-1" || !c.HttpOnly || !c.Secure || c.MaxAge != 3600 || c.Domain != "example.com" {
		t.Errorf("unexpected cookie: %+v", c)
	}

	body := decodeBody[userResponse](t, w)
	if body.Nickname != "alice" || body.ThemePreference != "dark" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAuthHandler_Register_NicknameTaken_Returns409(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
			return nil, nil, model.NewNicknameTakenError(in.Nickname)
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc, testAuthConfig).Register(w, jsonRequest(t, http.MethodPost, "/auth/register",
		map[string]string{"nickname": "alice", "password": "password123"}))

	assertErrorCode(t, w, http.StatusConflict, model.ErrCodeNicknameTaken)
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookie should be set on failure")
	}
}

func TestAuthHandler_Login_InvalidCredentials_Returns401(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, nickname, password string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc, testAuthConfig).Login(w, jsonRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"nickname": "alice", "password": "wrong"}))

	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeInvalidCredentials)
}

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, nickname, password string) (*model.User, *model.Session, error) {
			if nickname != "alice" || password != "password123" {
				t.Errorf("unexpected credentials %q/%q", nickname, password)
			}
			return sampleUser(), &model.Session{ID: "sess-2", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc, testAuthConfig).Login(w, jsonRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"nickname": "alice", "password": "password123"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if c := sessionCookie(t, w); c.Value != "sess-2" {
		t.Errorf("cookie value = %q, want sess-2", c.Value)
	}
}

func TestAuthHandler_Logout_ClearsCookieEvenOnError(t *testing.T) {
	called := ""
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			called = sessionID
			return errors.New("db down")
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-3"})
	w := httptest.NewRecorder()

	NewAuthHandler(svc, testAuthConfig).Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if called != "sess-3" {
		t.Errorf("Logout called with %q, want sess-3", called)
	}
	if c := sessionCookie(t, w); c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("cookie should be cleared, got %+v", c)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			switch sessionID {
			case "good":
				return sampleUser(), nil
			case "broken":
				return nil, errors.New("db down")
			default:
				return nil, auth.ErrSessionNotFound
			}
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	tests := []struct {
		name   string
		cookie string
		want   int
	}{
		{"valid session", "good", http.StatusOK},
		{"unknown session", "stale", http.StatusUnauthorized},
		{"no cookie", "", http.StatusUnauthorized},
		{"storage error", "broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.Me(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
