// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/repository"
	"github.com/hitoshi/messenger/internal/security"
)

// ProfileUpdate はプロフィール更新の入力。nilの項目は変更しない。
type ProfileUpdate struct {
	Nickname        *string
	AvatarGlyph     *string
	ThemePreference *string
}

// Service はユーザー管理のサービス層。
// ユーザー一覧、プロフィール解決、プロフィール更新、退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.TextSanitizer
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// ResolveUser は指定IDのユーザーの公開プロフィールを返す。見つからない場合はnilを返す。
func (s *Service) ResolveUser(ctx context.Context, id string) (*model.UserProfile, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	p := u.Profile()
	return &p, nil
}

// ResolveUsers は指定ID群の公開プロフィールをIDをキーにして返す。
// 存在しないIDは結果に含めない。
func (s *Service) ResolveUsers(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	users, err := s.userRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの一括取得に失敗しました: %w", err)
	}
	out := make(map[string]model.UserProfile, len(users))
	for _, u := range users {
		out[u.ID] = u.Profile()
	}
	return out, nil
}

// TouchPresence はユーザーをオンラインにし、最終アクセス時刻を更新する。
func (s *Service) TouchPresence(ctx context.Context, id string) error {
	if err := s.userRepo.SetPresence(ctx, id, true, s.now().UTC()); err != nil {
		return fmt.Errorf("オンライン状態の更新に失敗しました: %w", err)
	}
	return nil
}

// ListOthers は自分以外の全ユーザーの公開プロフィールをニックネーム順で返す。
func (s *Service) ListOthers(ctx context.Context, selfID string) ([]model.UserProfile, error) {
	users, err := s.userRepo.ListExcept(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	out := make([]model.UserProfile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out, nil
}

// UpdateProfile はニックネーム、アバター、テーマを更新し、更新後のユーザーを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	if in.Nickname != nil {
		nickname, err := CleanNickname(s.sanitizer, *in.Nickname)
		if err != nil {
			return nil, err
		}
		u.Nickname = nickname
	}
	if in.AvatarGlyph != nil {
		avatar, err := CleanAvatar(s.sanitizer, *in.AvatarGlyph)
		if err != nil {
			return nil, err
		}
		u.AvatarGlyph = avatar
	}
	if in.ThemePreference != nil {
		theme := model.Theme(*in.ThemePreference)
		if !theme.IsValid() {
			return nil, model.NewValidationError("テーマは light または dark を指定してください")
		}
		u.ThemePreference = theme
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.userRepo.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateNickname) {
			return nil, model.NewNicknameTakenError(u.Nickname)
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("profile updated", slog.String("user_id", userID))
	return u, nil
}

// Withdraw はユーザーの退会処理を実行する。
// セッションを削除した後にユーザーを削除する。contacts、messagesはCASCADE削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
