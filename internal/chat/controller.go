// Package chat はチャット画面の表示・送信・ポーリングを取りまとめる。
//
// メッセージの追記が唯一の正であり、連絡先の自動リンクはその後に行う
// ベストエフォートの処理として扱う。リンクに失敗してもメッセージは取り消さず、
// 次回の表示時に再度リンクを試みる。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/messenger/internal/conversation"
	"github.com/hitoshi/messenger/internal/metrics"
	"github.com/hitoshi/messenger/internal/model"
)

// TimestampLayout はポーリング結果の表示用時刻フォーマット（HH:MM）。
const TimestampLayout = "15:04"

// IdentityProvider はユーザーの解決とオンライン状態の更新を提供する。
type IdentityProvider interface {
	// ResolveUser は公開プロフィールを返す。存在しない場合はnilを返す。
	ResolveUser(ctx context.Context, id string) (*model.UserProfile, error)
	// TouchPresence は最終アクセス時刻を更新する。
	TouchPresence(ctx context.Context, id string) error
}

// ContactLedger は連絡先台帳の操作を提供する。
type ContactLedger interface {
	AddContact(ctx context.Context, ownerID, peerID string) (*model.Contact, bool, error)
	EnsureLinked(ctx context.Context, ownerID, peerID string) (bool, error)
}

// MessageLog はメッセージログの操作を提供する。
type MessageLog interface {
	Append(ctx context.Context, senderID, receiverID, content string) (*model.Message, error)
	ConversationBetween(ctx context.Context, userA, userB string) ([]*model.Message, error)
	MarkRead(ctx context.Context, senderID, receiverID string, atMost time.Time) (int64, error)
}

// ContactResolver は連絡先一覧の組み立てを提供する。
type ContactResolver interface {
	Resolve(ctx context.Context, selfID string) ([]conversation.Entry, error)
}

// ViewRequest はチャット画面の表示要求。
// Sendがnilでない場合は表示前にメッセージを送信する。
type ViewRequest struct {
	CurrentUserID string
	PeerID        string
	Send          *string
}

// View はチャット画面の表示内容。
// 相手が選択されていない場合、ActivePeerとConversationは空になる。
type View struct {
	Contacts     []conversation.Entry
	ActivePeer   *model.UserProfile
	Conversation []*model.Message
	Sent         *model.Message
}

// PolledMessage はポーリングで返すメッセージの表示用表現。
type PolledMessage struct {
	ID               int64
	SenderID         string
	Content          string
	TimestampDisplay string
	CreatedAt        time.Time
	IsMine           bool
	Status           model.MessageStatus
}

// Config はControllerの設定。
type Config struct {
	// Location は表示用時刻のタイムゾーン。nilの場合はUTC。
	Location *time.Location
}

// Controller はチャット画面のユースケースを提供する。
type Controller struct {
	identity IdentityProvider
	ledger   ContactLedger
	log      MessageLog
	resolver ContactResolver
	metrics  metrics.MetricsCollector
	location *time.Location
	now      func() time.Time
}

// NewController はControllerを生成する。
func NewController(
	identity IdentityProvider,
	ledger ContactLedger,
	log MessageLog,
	resolver ContactResolver,
	m metrics.MetricsCollector,
	cfg Config,
) *Controller {
	if m == nil {
		m = metrics.Nop{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Controller{
		identity: identity,
		ledger:   ledger,
		log:      log,
		resolver: resolver,
		metrics:  m,
		location: loc,
		now:      time.Now,
	}
}

// View はチャット画面を組み立てる。
//
// 相手が指定された場合は、相手からの未読メッセージを既読にし、
// 会話が存在すれば自分の連絡先に相手を自動リンクする。
// 送信内容が空白のみの場合は何もしない。
func (c *Controller) View(ctx context.Context, req ViewRequest) (*View, error) {
	self := req.CurrentUserID
	c.touch(ctx, self)

	if req.PeerID == "" {
		contacts, err := c.resolver.Resolve(ctx, self)
		if err != nil {
			return nil, err
		}
		return &View{Contacts: contacts}, nil
	}

	peer, err := c.resolvePeer(ctx, self, req.PeerID)
	if err != nil {
		return nil, err
	}

	if err := c.markRead(ctx, peer.ID, self); err != nil {
		return nil, err
	}

	convo, err := c.log.ConversationBetween(ctx, self, peer.ID)
	if err != nil {
		return nil, err
	}
	if len(convo) > 0 {
		c.link(ctx, self, peer.ID)
	}

	view := &View{ActivePeer: peer}

	if req.Send != nil {
		sent, err := c.send(ctx, self, peer.ID, *req.Send)
		if err != nil {
			return nil, err
		}
		if sent != nil {
			view.Sent = sent
			convo, err = c.log.ConversationBetween(ctx, self, peer.ID)
			if err != nil {
				return nil, err
			}
		}
	}

	contacts, err := c.resolver.Resolve(ctx, self)
	if err != nil {
		return nil, err
	}
	view.Contacts = contacts
	view.Conversation = convo
	return view, nil
}

// SendMessage はpeerにメッセージを送信し、双方の連絡先をリンクする。
// 本文が空白のみの場合は何もせず(nil, nil)を返す。
func (c *Controller) SendMessage(ctx context.Context, selfID, peerID, content string) (*model.Message, error) {
	peer, err := c.resolvePeer(ctx, selfID, peerID)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, selfID, peer.ID, content)
}

// AddContact はpeerを明示的に連絡先へ追加する。
func (c *Controller) AddContact(ctx context.Context, selfID, peerID string) (*model.Contact, bool, error) {
	return c.ledger.AddContact(ctx, selfID, peerID)
}

// Poll は会話の全メッセージを表示用に変換して返す。
// クライアントは開いている会話だけをポーリングするため、相手からの未読も既読にする。
func (c *Controller) Poll(ctx context.Context, selfID, peerID string) ([]PolledMessage, error) {
	start := c.now()
	defer func() {
		c.metrics.RecordPollLatency(time.Since(start))
	}()

	peer, err := c.resolvePeer(ctx, selfID, peerID)
	if err != nil {
		return nil, err
	}
	c.touch(ctx, selfID)

	if err := c.markRead(ctx, peer.ID, selfID); err != nil {
		return nil, err
	}

	convo, err := c.log.ConversationBetween(ctx, selfID, peer.ID)
	if err != nil {
		return nil, err
	}

	out := make([]PolledMessage, 0, len(convo))
	for _, m := range convo {
		out = append(out, PolledMessage{
			ID:               m.ID,
			SenderID:         m.SenderID,
			Content:          m.Content,
			TimestampDisplay: m.CreatedAt.In(c.location).Format(TimestampLayout),
			CreatedAt:        m.CreatedAt,
			IsMine:           m.SenderID == selfID,
			Status:           m.Status,
		})
	}
	return out, nil
}

func (c *Controller) resolvePeer(ctx context.Context, selfID, peerID string) (*model.UserProfile, error) {
	if peerID == "" || peerID == selfID {
		return nil, model.NewPeerNotFoundError(peerID)
	}
	peer, err := c.identity.ResolveUser(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("会話相手の取得に失敗しました: %w", err)
	}
	if peer == nil {
		return nil, model.NewPeerNotFoundError(peerID)
	}
	return peer, nil
}

func (c *Controller) markRead(ctx context.Context, senderID, receiverID string) error {
	if _, err := c.log.MarkRead(ctx, senderID, receiverID, c.now().UTC()); err != nil {
		return err
	}
	return nil
}

// send は本文を追記し、送信者・受信者の双方向に自動リンクする。
func (c *Controller) send(ctx context.Context, selfID, peerID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	msg, err := c.log.Append(ctx, selfID, peerID, content)
	if err != nil {
		return nil, err
	}

	c.link(ctx, selfID, peerID)
	c.link(ctx, peerID, selfID)
	return msg, nil
}

// link は自動リンクを行う。失敗はログとメトリクスに記録するだけで呼び出し元には返さない。
func (c *Controller) link(ctx context.Context, ownerID, peerID string) {
	if _, err := c.ledger.EnsureLinked(ctx, ownerID, peerID); err != nil {
		c.metrics.RecordAutoLinkFailure()
		slog.Warn("contact auto-link failed",
			slog.String("owner_id", ownerID),
			slog.String("peer_id", peerID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) touch(ctx context.Context, userID string) {
	if err := c.identity.TouchPresence(ctx, userID); err != nil {
		slog.Warn("presence update failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
