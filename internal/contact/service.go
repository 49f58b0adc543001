// Package contact は連絡先台帳（owner → peer の一方向の関係）のドメインロジックを提供する。
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/messenger/internal/metrics"
	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/repository"
)

// Service は連絡先台帳のサービス層。
// 追加は冪等で、同じ (owner, peer) を何度追加しても行は1つだけになる。
type Service struct {
	contactRepo repository.ContactRepository
	userRepo    repository.UserRepository
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsがnilの場合は記録しない。
func NewService(
	contactRepo repository.ContactRepository,
	userRepo repository.UserRepository,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		contactRepo: contactRepo,
		userRepo:    userRepo,
		metrics:     m,
		now:         time.Now,
	}
}

// AddContact はownerの連絡先にpeerを追加する。
// 既に存在する場合は既存の行をcreated=falseで返す。
// peerが存在しない、またはowner自身の場合はINVALID_PEERエラーを返す。
func (s *Service) AddContact(ctx context.Context, ownerID, peerID string) (*model.Contact, bool, error) {
	if peerID == "" || peerID == ownerID {
		return nil, false, model.NewInvalidPeerError(peerID)
	}

	peer, err := s.userRepo.FindByID(ctx, peerID)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if peer == nil {
		return nil, false, model.NewInvalidPeerError(peerID)
	}

	created, err := s.insert(ctx, ownerID, peerID, model.ContactSourceExplicit)
	if errors.Is(err, repository.ErrUnknownUser) {
		// 確認後に相手が退会した場合
		return nil, false, model.NewInvalidPeerError(peerID)
	}
	if err != nil {
		return nil, false, err
	}

	contact, err := s.contactRepo.FindByOwnerAndPeer(ctx, ownerID, peerID)
	if err != nil {
		return nil, false, fmt.Errorf("連絡先の取得に失敗しました: %w", err)
	}
	if contact == nil {
		return nil, false, fmt.Errorf("追加した連絡先が見つかりません: owner=%s peer=%s", ownerID, peerID)
	}

	return contact, created, nil
}

// EnsureLinked はownerの連絡先にpeerが含まれることを保証する。
// 相手の存在確認は呼び出し側で済んでいる前提で、新規に作成した場合にtrueを返す。
func (s *Service) EnsureLinked(ctx context.Context, ownerID, peerID string) (bool, error) {
	if ownerID == peerID {
		return false, nil
	}
	return s.insert(ctx, ownerID, peerID, model.ContactSourceAuto)
}

func (s *Service) insert(ctx context.Context, ownerID, peerID string, source model.ContactSource) (bool, error) {
	contact := &model.Contact{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		PeerID:    peerID,
		CreatedAt: s.now().UTC(),
	}

	created, err := s.contactRepo.Insert(ctx, contact)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownUser) {
			return false, err
		}
		return false, fmt.Errorf("連絡先の追加に失敗しました: %w", err)
	}

	if created {
		s.metrics.RecordContactCreated(string(source))
		slog.Info("contact created",
			slog.String("owner_id", ownerID),
			slog.String("peer_id", peerID),
			slog.String("source", string(source)),
		)
	}
	return created, nil
}

// ListContacts はownerが明示的に登録した連絡先を返す。順序は保証しない。
func (s *Service) ListContacts(ctx context.Context, ownerID string) ([]*model.Contact, error) {
	contacts, err := s.contactRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("連絡先一覧の取得に失敗しました: %w", err)
	}
	return contacts, nil
}

// RemoveContact はowner → peer の連絡先を削除する。
// 逆方向の連絡先とメッセージ履歴には影響しない。
func (s *Service) RemoveContact(ctx context.Context, ownerID, peerID string) (bool, error) {
	removed, err := s.contactRepo.Delete(ctx, ownerID, peerID)
	if err != nil {
		return false, fmt.Errorf("連絡先の削除に失敗しました: %w", err)
	}
	return removed, nil
}
