// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/messenger/internal/model"
)

// ErrDuplicateNickname はニックネームの一意制約に違反した場合に返される。
var ErrDuplicateNickname = errors.New("nickname already exists")

// ErrUnknownUser は参照先のユーザーが存在しない場合（外部キー制約違反）に返される。
var ErrUnknownUser = errors.New("referenced user does not exist")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIDs は指定ID群のユーザーをまとめて取得する。
	// 存在しないIDは結果に含まれない。順序は保証しない。
	FindByIDs(ctx context.Context, ids []string) ([]*model.User, error)

	// FindByNickname はニックネームでユーザーを検索する。見つからない場合はnilを返す。
	FindByNickname(ctx context.Context, nickname string) (*model.User, error)

	// ListExcept は指定ユーザー以外の全ユーザーをニックネーム順で返す。
	ListExcept(ctx context.Context, userID string) ([]*model.User, error)

	// Create はユーザーを作成する。
	// ニックネームが重複している場合はErrDuplicateNicknameを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はニックネーム、アバター、テーマを更新する。
	// ニックネームが重複している場合はErrDuplicateNicknameを返す。
	UpdateProfile(ctx context.Context, user *model.User) error

	// SetPresence はオンライン状態と最終アクセス時刻を更新する。
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error

	// ResetStalePresence はstaleBefore以降にアクセスのないオンラインユーザーを
	// オフラインに戻し、更新件数を返す。
	ResetStalePresence(ctx context.Context, staleBefore time.Time) (int64, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、contacts、messagesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ContactRepository は連絡先（owner → peer）の永続化インターフェース。
type ContactRepository interface {
	// Insert は連絡先を挿入する。
	// UNIQUE(owner_id, peer_id)制約に衝突した場合は何もせずcreated=falseを返す。
	// 読んでから書く方式ではなく、INSERT ON CONFLICT DO NOTHINGで競合を吸収する。
	// owner・peerのいずれかが存在しない場合はErrUnknownUserを返す。
	Insert(ctx context.Context, contact *model.Contact) (created bool, err error)

	// FindByOwnerAndPeer は連絡先を取得する。見つからない場合はnilを返す。
	FindByOwnerAndPeer(ctx context.Context, ownerID, peerID string) (*model.Contact, error)

	// ListByOwner はユーザーが登録した連絡先を返す。順序は保証しない。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Contact, error)

	// Delete は一方向の連絡先を削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, ownerID, peerID string) (bool, error)
}

// MessageRepository はメッセージの永続化インターフェース。
// 本文の更新・削除は提供しない（追記専用）。
type MessageRepository interface {
	// Create はメッセージを追記し、採番されたIDをmessage.IDに設定する。
	// 送信者・受信者のいずれかが存在しない場合はErrUnknownUserを返す。
	Create(ctx context.Context, message *model.Message) error

	// ListBetween は2ユーザー間の全メッセージをcreated_at昇順、同時刻はID昇順で返す。
	ListBetween(ctx context.Context, userA, userB string) ([]*model.Message, error)

	// FindLastBetween は2ユーザー間の最新メッセージを返す。存在しない場合はnilを返す。
	FindLastBetween(ctx context.Context, userA, userB string) (*model.Message, error)

	// MarkRead はsender→receiverの未読メッセージのうちcreated_atがatMost以前のものを
	// 単一の条件付きUPDATEで既読にし、変更行数を返す。
	MarkRead(ctx context.Context, senderID, receiverID string, atMost, readAt time.Time) (int64, error)

	// CountUnread はfrom→toの未読メッセージ数を返す。
	CountUnread(ctx context.Context, fromID, toID string) (int, error)

	// ListSummaries は指定ユーザーの全会話相手について、最新メッセージと
	// 相手から自分への未読数を1回のクエリで返す。
	ListSummaries(ctx context.Context, userID string) ([]ConversationSummary, error)
}

// ConversationSummary は会話相手ごとの最新メッセージと未読数を結合した構造体。
type ConversationSummary struct {
	PartnerID   string
	LastMessage model.Message
	UnreadCount int
}
