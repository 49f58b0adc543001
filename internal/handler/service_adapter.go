package handler

import (
	"context"

	"github.com/hitoshi/messenger/internal/chat"
	"github.com/hitoshi/messenger/internal/contact"
	"github.com/hitoshi/messenger/internal/conversation"
	"github.com/hitoshi/messenger/internal/model"
)

// ContactServiceAdapter は連絡先一覧の解決、追加、削除を
// ContactServiceInterfaceにまとめるアダプタ。
// 追加はチャットコントローラー経由、削除は台帳を直接操作する。
type ContactServiceAdapter struct {
	resolver   *conversation.Resolver
	controller *chat.Controller
	ledger     *contact.Service
}

// NewContactServiceAdapter はContactServiceAdapterを生成する。
func NewContactServiceAdapter(resolver *conversation.Resolver, controller *chat.Controller, ledger *contact.Service) *ContactServiceAdapter {
	return &ContactServiceAdapter{
		resolver:   resolver,
		controller: controller,
		ledger:     ledger,
	}
}

// ListEntries は連絡先一覧を返す。
func (a *ContactServiceAdapter) ListEntries(ctx context.Context, selfID string) ([]conversation.Entry, error) {
	return a.resolver.Resolve(ctx, selfID)
}

// AddContact は連絡先を明示的に追加する。
func (a *ContactServiceAdapter) AddContact(ctx context.Context, selfID, peerID string) (*model.Contact, bool, error) {
	return a.controller.AddContact(ctx, selfID, peerID)
}

// RemoveContact は連絡先を削除する。
func (a *ContactServiceAdapter) RemoveContact(ctx context.Context, selfID, peerID string) (bool, error) {
	return a.ledger.RemoveContact(ctx, selfID, peerID)
}

var (
	_ ContactServiceInterface = (*ContactServiceAdapter)(nil)
	_ ChatServiceInterface    = (*chat.Controller)(nil)
)
