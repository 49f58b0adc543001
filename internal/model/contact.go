// Package model はドメインモデルを定義する。
package model

import "time"

// Contact はユーザー間の一方向の連絡先登録を表す。
// (OwnerID, PeerID) の組は一意で、(A,B) が存在しても (B,A) は含意しない。
// 作成後に更新されることはない。
type Contact struct {
	ID        string
	OwnerID   string
	PeerID    string
	CreatedAt time.Time
}

// ContactSource は連絡先がどの経路で作成されたかを表す。
type ContactSource string

const (
	// ContactSourceExplicit はユーザー操作による明示的な追加。
	ContactSourceExplicit ContactSource = "explicit"
	// ContactSourceAuto はメッセージのやり取りを契機とした自動リンク。
	ContactSourceAuto ContactSource = "auto"
)
