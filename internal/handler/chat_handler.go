package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/messenger/internal/chat"
	"github.com/hitoshi/messenger/internal/conversation"
	"github.com/hitoshi/messenger/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	View(ctx context.Context, req chat.ViewRequest) (*chat.View, error)
	SendMessage(ctx context.Context, selfID, peerID, content string) (*model.Message, error)
	Poll(ctx context.Context, selfID, peerID string) ([]chat.PolledMessage, error)
}

// ChatHandler はチャット画面とメッセージ送受信のHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	ID         int64      `json:"id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Content    string     `json:"content"`
	Status     string     `json:"status"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Status:     string(m.Status),
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
}

type contactEntryResponse struct {
	Peer              profileResponse  `json:"peer"`
	LastMessage       *messageResponse `json:"last_message"`
	UnreadCount       int              `json:"unread_count"`
	IsExplicitContact bool             `json:"is_explicit_contact"`
}

func toContactEntries(entries []conversation.Entry) []contactEntryResponse {
	out := make([]contactEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := contactEntryResponse{
			Peer:              toProfileResponse(e.Peer),
			UnreadCount:       e.UnreadCount,
			IsExplicitContact: e.IsExplicitContact,
		}
		if e.LastMessage != nil {
			m := toMessageResponse(e.LastMessage)
			resp.LastMessage = &m
		}
		out = append(out, resp)
	}
	return out
}

type chatViewResponse struct {
	Contacts   []contactEntryResponse `json:"contacts"`
	ActivePeer *profileResponse       `json:"active_peer"`
	Messages   []messageResponse      `json:"messages"`
	Sent       *messageResponse       `json:"sent,omitempty"`
}

func toChatViewResponse(v *chat.View) chatViewResponse {
	resp := chatViewResponse{
		Contacts: toContactEntries(v.Contacts),
		Messages: make([]messageResponse, 0, len(v.Conversation)),
	}
	if v.ActivePeer != nil {
		p := toProfileResponse(*v.ActivePeer)
		resp.ActivePeer = &p
	}
	for _, m := range v.Conversation {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	if v.Sent != nil {
		m := toMessageResponse(v.Sent)
		resp.Sent = &m
	}
	return resp
}

// polledMessageResponse はポーリング用の軽量なメッセージ表現。
type polledMessageResponse struct {
	ID        int64     `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
	IsMine    bool      `json:"is_mine"`
	Status    string    `json:"status"`
}

// GetChat はチャット画面を返す。peer_idが無い場合は連絡先一覧のみを返す。
// GET /api/chat?peer_id=xxx
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	view, err := h.service.View(r.Context(), chat.ViewRequest{
		CurrentUserID: userID,
		PeerID:        r.URL.Query().Get("peer_id"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatViewResponse(view))
}

// PostChat はメッセージを送信してからチャット画面を返す。
// POST /api/chat?peer_id=xxx
func (h *ChatHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.View(r.Context(), chat.ViewRequest{
		CurrentUserID: userID,
		PeerID:        r.URL.Query().Get("peer_id"),
		Send:          &req.Content,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatViewResponse(view))
}

// PollMessages は会話の全メッセージを返す。クライアントは数秒ごとに呼び出す。
// GET /api/conversations/{peerID}/messages
func (h *ChatHandler) PollMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	polled, err := h.service.Poll(r.Context(), userID, chi.URLParam(r, "peerID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]polledMessageResponse, 0, len(polled))
	for _, m := range polled {
		out = append(out, polledMessageResponse{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			Timestamp: m.TimestampDisplay,
			CreatedAt: m.CreatedAt,
			IsMine:    m.IsMine,
			Status:    string(m.Status),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// SendMessage はメッセージを送信する。本文が空白のみの場合は何もせず204を返す。
// POST /api/conversations/{peerID}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.SendMessage(r.Context(), userID, chi.URLParam(r, "peerID"), req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}
