package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/messenger/internal/conversation"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/hitoshi/messenger/internal/model"
)

// ContactServiceInterface は連絡先ハンドラーが必要とするサービスインターフェース。
type ContactServiceInterface interface {
	// ListEntries は明示的な連絡先と会話相手を合わせた連絡先一覧を返す。
	ListEntries(ctx context.Context, selfID string) ([]conversation.Entry, error)
	AddContact(ctx context.Context, selfID, peerID string) (*model.Contact, bool, error)
	RemoveContact(ctx context.Context, selfID, peerID string) (bool, error)
}

// ContactHandler は連絡先管理のHTTPハンドラー。
type ContactHandler struct {
	service ContactServiceInterface
}

// NewContactHandler はContactHandlerを生成する。
func NewContactHandler(service ContactServiceInterface) *ContactHandler {
	return &ContactHandler{service: service}
}

type addContactRequest struct {
	PeerID string `json:"peer_id"`
}

type contactResponse struct {
	PeerID    string    `json:"peer_id"`
	CreatedAt time.Time `json:"created_at"`
	Created   bool      `json:"created"`
}

// ListContacts は連絡先一覧を最新メッセージ順で返す。
// GET /api/contacts
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListEntries(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"contacts": toContactEntries(entries)})
}

// AddContact は連絡先を追加する。新規作成時は201、既存の場合は200を返す。
// POST /api/contacts
func (h *ContactHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req addContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PeerID == "" {
		middleware.WriteError(w, r, model.NewValidationError("peer_idが空です"))
		return
	}

	contact, created, err := h.service.AddContact(r.Context(), userID, req.PeerID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, contactResponse{
		PeerID:    contact.PeerID,
		CreatedAt: contact.CreatedAt,
		Created:   created,
	})
}

// RemoveContact は一方向の連絡先を削除する。存在しない場合も204を返す。
// 会話が残っている相手は連絡先一覧に引き続き表示される。
// DELETE /api/contacts/{peerID}
func (h *ContactHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.RemoveContact(r.Context(), userID, chi.URLParam(r, "peerID")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
