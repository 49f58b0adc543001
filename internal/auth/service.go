// Package auth はニックネームとパスワードによる認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/repository"
	"github.com/hitoshi/messenger/internal/security"
	"github.com/hitoshi/messenger/internal/user"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 8
	// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
	MaxPasswordBytes = 72
)

// ErrSessionNotFound はセッションが存在しないか期限切れの場合に返される。
var ErrSessionNotFound = errors.New("session not found or expired")

// RegisterInput は新規登録の入力。
type RegisterInput struct {
	Nickname        string
	Password        string
	PasswordConfirm string
	AvatarGlyph     string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.TextSanitizer
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.TextSanitizer,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		config:      config,
		now:         time.Now,
	}
}

// Register はユーザーを新規登録し、ログイン済みのセッションを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, *model.Session, error) {
	nickname, err := user.CleanNickname(s.sanitizer, in.Nickname)
	if err != nil {
		return nil, nil, err
	}
	avatar, err := user.CleanAvatar(s.sanitizer, in.AvatarGlyph)
	if err != nil {
		return nil, nil, err
	}
	if err := validatePassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	u := &model.User{
		ID:              uuid.New().String(),
		Nickname:        nickname,
		AvatarGlyph:     avatar,
		ThemePreference: model.ThemeLight,
		PasswordHash:    string(hash),
		IsOnline:        true,
		LastSeenAt:      &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateNickname) {
			return nil, nil, model.NewNicknameTakenError(nickname)
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", u.ID),
		slog.String("nickname", u.Nickname),
	)

	session, err := s.createSession(ctx, u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return u, session, nil
}

// Login はニックネームとパスワードを検証してセッションを発行し、ユーザーをオンラインにする。
func (s *Service) Login(ctx context.Context, nickname, password string) (*model.User, *model.Session, error) {
	u, err := s.userRepo.FindByNickname(ctx, strings.TrimSpace(nickname))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed", slog.String("user_id", u.ID))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	now := s.now().UTC()
	if err := s.userRepo.SetPresence(ctx, u.ID, true, now); err != nil {
		return nil, nil, fmt.Errorf("failed to update presence: %w", err)
	}
	u.IsOnline = true
	u.LastSeenAt = &now

	session, err := s.createSession(ctx, u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", u.ID))
	return u, session, nil
}

// Logout はセッションを破棄し、ユーザーをオフラインにする。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if session != nil {
		if err := s.userRepo.SetPresence(ctx, session.UserID, false, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to update presence: %w", err)
		}
		slog.Info("user logged out", slog.String("user_id", session.UserID))
	}
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	u, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, ErrSessionNotFound
	}

	return u, nil
}

func validatePassword(password, confirm string) error {
	if len([]rune(password)) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上にしてください", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return model.NewValidationError("パスワードが長すぎます")
	}
	if password != confirm {
		return model.NewValidationError("確認用パスワードが一致しません")
	}
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
