package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/repository"
	"github.com/hitoshi/messenger/internal/repository/memrepo"
	"github.com/hitoshi/messenger/internal/security"
	"golang.org/x/crypto/bcrypt"
)

// --- モック定義 ---

type mockSessionRepo struct {
	repository.SessionRepository
	createFn func(ctx context.Context, session *model.Session) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return m.createFn(ctx, session)
}

// --- ヘルパー ---

func newTestService(t *testing.T) (*Service, *memrepo.Store) {
	t.Helper()
	store := memrepo.New()
	svc := NewService(store.Users(), store.Sessions(), security.NewTextSanitizer(), ServiceConfig{
		SessionMaxAge: 3600,
		BcryptCost:    bcrypt.MinCost,
	})
	return svc, store
}

func register(t *testing.T, svc *Service, nickname string) (*model.User, *model.Session) {
	t.Helper()
	u, sess, err := svc.Register(context.Background(), RegisterInput{
		Nickname:        nickname,
		Password:        "password123",
		PasswordConfirm: "password123",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return u, sess
}

// --- テスト ---

func TestRegister_CreatesUserAndSession(t *testing.T) {
	svc, store := newTestService(t)

	u, sess, err := svc.Register(context.Background(), RegisterInput{
		Nickname:        " alice ",
		Password:        "password123",
		PasswordConfirm: "password123",
		AvatarGlyph:     "🐱",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if u.Nickname != "alice" {
		t.Errorf("Nickname = %q, want %q", u.Nickname, "alice")
	}
	if u.AvatarGlyph != "🐱" {
		t.Errorf("AvatarGlyph = %q, want %q", u.AvatarGlyph, "🐱")
	}
	if u.ThemePreference != model.ThemeLight {
		t.Errorf("ThemePreference = %q, want light", u.ThemePreference)
	}
	if u.PasswordHash == "password123" || u.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
	if !u.IsOnline {
		t.Error("registered user should be online")
	}
	if sess == nil || sess.UserID != u.ID || len(sess.ID) != 64 {
		t.Errorf("session = %+v, want 64-char hex for user %s", sess, u.ID)
	}
	if !sess.ExpiresAt.After(time.Now().Add(59 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want ~1h ahead", sess.ExpiresAt)
	}

	stored, _ := store.Sessions().FindByID(context.Background(), sess.ID)
	if stored == nil {
		t.Error("session should be persisted")
	}
}

func TestRegister_DefaultAvatar(t *testing.T) {
	svc, _ := newTestService(t)

	u, _ := register(t, svc, "alice")
	if u.AvatarGlyph != model.DefaultAvatarGlyph {
		t.Errorf("AvatarGlyph = %q, want default", u.AvatarGlyph)
	}
}

func TestRegister_DuplicateNickname_ReturnsNicknameTaken(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "alice")

	_, _, err := svc.Register(context.Background(), RegisterInput{
		Nickname:        "alice",
		Password:        "password123",
		PasswordConfirm: "password123",
	})
	if !model.HasCode(err, model.ErrCodeNicknameTaken) {
		t.Errorf("error = %v, want NICKNAME_TAKEN", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"空のニックネーム", RegisterInput{Nickname: " ", Password: "password123", PasswordConfirm: "password123"}},
		{"短いパスワード", RegisterInput{Nickname: "bob", Password: "short", PasswordConfirm: "short"}},
		{"確認用パスワード不一致", RegisterInput{Nickname: "bob", Password: "password123", PasswordConfirm: "password124"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.in)
			if !model.HasCode(err, model.ErrCodeValidationFailed) {
				t.Errorf("error = %v, want VALIDATION_FAILED", err)
			}
		})
	}
}

func TestLogin_ValidCredentials_CreatesSessionAndSetsOnline(t *testing.T) {
	svc, store := newTestService(t)
	registered, _ := register(t, svc, "alice")
	store.Users().SetPresence(context.Background(), registered.ID, false, time.Now())

	u, sess, err := svc.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if u.ID != registered.ID {
		t.Errorf("user ID = %q, want %q", u.ID, registered.ID)
	}
	if sess == nil || sess.UserID != registered.ID {
		t.Errorf("session = %+v", sess)
	}

	stored, _ := store.Users().FindByID(context.Background(), registered.ID)
	if !stored.IsOnline {
		t.Error("user should be online after login")
	}
}

func TestLogin_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "alice")

	_, _, err := svc.Login(context.Background(), "alice", "wrong-password")
	if !model.HasCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("error = %v, want INVALID_CREDENTIALS", err)
	}
}

func TestLogin_UnknownNickname_ReturnsInvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Login(context.Background(), "nobody", "password123")
	if !model.HasCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("error = %v, want INVALID_CREDENTIALS", err)
	}
}

func TestLogin_SessionCreationError_ReturnsError(t *testing.T) {
	store := memrepo.New()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	store.AddUser(&model.User{ID: "u1", Nickname: "alice", PasswordHash: string(hash)})

	sessErr := errors.New("db error")
	svc := NewService(store.Users(), &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error { return sessErr },
	}, security.NewTextSanitizer(), ServiceConfig{SessionMaxAge: 60, BcryptCost: bcrypt.MinCost})

	_, _, err := svc.Login(context.Background(), "alice", "password123")
	if !errors.Is(err, sessErr) {
		t.Errorf("error = %v, want wrapped sessErr", err)
	}
}

func TestLogout_DeletesSessionAndSetsOffline(t *testing.T) {
	svc, store := newTestService(t)
	u, sess := register(t, svc, "alice")

	if err := svc.Logout(context.Background(), sess.ID); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	stored, _ := store.Sessions().FindByID(context.Background(), sess.ID)
	if stored != nil {
		t.Error("session should be deleted")
	}
	after, _ := store.Users().FindByID(context.Background(), u.ID)
	if after.IsOnline {
		t.Error("user should be offline after logout")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	svc, _ := newTestService(t)
	u, sess := register(t, svc, "alice")

	got, err := svc.GetCurrentUser(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetCurrentUser returned error: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("user ID = %q, want %q", got.ID, u.ID)
	}
}

func TestGetCurrentUser_ExpiredSession_ReturnsError(t *testing.T) {
	svc, store := newTestService(t)
	u, _ := register(t, svc, "alice")
	store.Sessions().Create(context.Background(), &model.Session{
		ID:        "expired",
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	_, err := svc.GetCurrentUser(context.Background(), "expired")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestGetCurrentUser_EmptySessionID_ReturnsError(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetCurrentUser(context.Background(), "")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}
