// Package model はドメインモデルを定義する。
package model

import "time"

// MessageStatus はメッセージの配送状態を表す。
// 状態は sent → delivered → read の順にのみ進み、後退しない。
type MessageStatus string

const (
	// MessageStatusSent は送信済み（未読）。
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered は配送確認済み。現在この状態を生成する操作はない。
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead は既読。
	MessageStatusRead MessageStatus = "read"
)

// rank は状態の進行順序を返す。未定義の値は -1。
func (s MessageStatus) rank() int {
	switch s {
	case MessageStatusSent:
		return 0
	case MessageStatusDelivered:
		return 1
	case MessageStatusRead:
		return 2
	default:
		return -1
	}
}

// IsValid は状態が定義済みの値かどうかを返す。
func (s MessageStatus) IsValid() bool {
	return s.rank() >= 0
}

// IsUnread は受信者がまだ読んでいない状態かどうかを返す。
func (s MessageStatus) IsUnread() bool {
	return s == MessageStatusSent || s == MessageStatusDelivered
}

// CanTransitionTo は s から next への遷移が許可されるかどうかを返す。
// 同一状態への遷移や後退は許可しない。
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() > s.rank()
}

// Message は2ユーザー間で送受信されたメッセージを表す。
// IDは挿入順の連番で、同一時刻のメッセージの並び順を決める。
type Message struct {
	ID         int64
	SenderID   string
	ReceiverID string
	Content    string
	Status     MessageStatus
	ReadAt     *time.Time
	CreatedAt  time.Time
}

// Involves はメッセージが指定ユーザー同士の会話に属するかどうかを返す。
func (m *Message) Involves(userA, userB string) bool {
	return (m.SenderID == userA && m.ReceiverID == userB) ||
		(m.SenderID == userB && m.ReceiverID == userA)
}

// PartnerOf は self から見た会話相手のIDを返す。
func (m *Message) PartnerOf(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}
