// Package message は追記専用のメッセージログと配送状態の遷移を提供する。
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/messenger/internal/metrics"
	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/repository"
)

// DefaultMaxLength はメッセージ本文の既定の上限文字数。
const DefaultMaxLength = 4000

// Service はメッセージログのサービス層。
// 本文は一度書き込まれたら変更されず、statusとread_atのみが前進方向に更新される。
type Service struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	metrics     metrics.MetricsCollector
	maxLength   int
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// maxLengthが0以下の場合はDefaultMaxLengthを使用する。
func NewService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	m metrics.MetricsCollector,
	maxLength int,
) *Service {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		metrics:     m,
		maxLength:   maxLength,
		now:         time.Now,
	}
}

// Append はsenderからreceiverへのメッセージを追記する。
// 本文は前後の空白だけを除去し、それ以外は入力どおりに保存する。エスケープは表示側で行う。
func (s *Service) Append(ctx context.Context, senderID, receiverID, content string) (*model.Message, error) {
	body := strings.TrimSpace(content)
	if body == "" {
		return nil, model.NewEmptyContentError()
	}
	if utf8.RuneCountInString(body) > s.maxLength {
		return nil, model.NewMessageTooLongError(s.maxLength)
	}
	if senderID == "" || senderID == receiverID {
		return nil, model.NewInvalidParticipantError("送信者と受信者が同一です")
	}

	receiver, err := s.userRepo.FindByID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("受信者の取得に失敗しました: %w", err)
	}
	if receiver == nil {
		return nil, model.NewInvalidParticipantError("受信者が存在しません")
	}

	msg := &model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    body,
		Status:     model.MessageStatusSent,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrUnknownUser) {
			return nil, model.NewInvalidParticipantError("送信者または受信者が存在しません")
		}
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	s.metrics.RecordMessageSent()
	slog.Info("message sent",
		slog.Int64("message_id", msg.ID),
		slog.String("sender_id", senderID),
		slog.String("receiver_id", receiverID),
	)
	return msg, nil
}

// ConversationBetween は2ユーザー間の全メッセージを時系列順で返す。
func (s *Service) ConversationBetween(ctx context.Context, userA, userB string) ([]*model.Message, error) {
	messages, err := s.messageRepo.ListBetween(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}
	return messages, nil
}

// MarkRead はsender→receiverの未読メッセージのうちatMost以前のものを既読にする。
// 何度呼んでも結果は変わらず、既読のメッセージが未読に戻ることはない。
func (s *Service) MarkRead(ctx context.Context, senderID, receiverID string, atMost time.Time) (int64, error) {
	n, err := s.messageRepo.MarkRead(ctx, senderID, receiverID, atMost, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("既読の更新に失敗しました: %w", err)
	}
	s.metrics.RecordMessagesRead(n)
	return n, nil
}

// LastMessageBetween は2ユーザー間の最新メッセージを返す。存在しない場合はnilを返す。
func (s *Service) LastMessageBetween(ctx context.Context, userA, userB string) (*model.Message, error) {
	m, err := s.messageRepo.FindLastBetween(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("最新メッセージの取得に失敗しました: %w", err)
	}
	return m, nil
}

// UnreadCount はfrom→toのメッセージのうち、まだ読まれていないものの数を返す。
func (s *Service) UnreadCount(ctx context.Context, fromID, toID string) (int, error) {
	n, err := s.messageRepo.CountUnread(ctx, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("未読数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// Summaries は自分の全会話相手について最新メッセージと未読数をまとめて返す。
func (s *Service) Summaries(ctx context.Context, userID string) ([]repository.ConversationSummary, error) {
	summaries, err := s.messageRepo.ListSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("会話サマリーの取得に失敗しました: %w", err)
	}
	return summaries, nil
}
