// Package conversation はユーザーの連絡先一覧を、明示的な連絡先と会話履歴の
// 両方から組み立てる。
package conversation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/repository"
)

// Entry は連絡先一覧の1行を表す。
type Entry struct {
	Peer              model.UserProfile
	LastMessage       *model.Message // 会話が無い場合はnil
	UnreadCount       int            // peer → self の未読数
	IsExplicitContact bool
}

// ContactLister は明示的な連絡先の取得を提供する。
type ContactLister interface {
	ListContacts(ctx context.Context, ownerID string) ([]*model.Contact, error)
}

// SummaryLister は会話相手ごとの最新メッセージと未読数の取得を提供する。
type SummaryLister interface {
	Summaries(ctx context.Context, userID string) ([]repository.ConversationSummary, error)
}

// ProfileLoader はユーザープロフィールの一括取得を提供する。
// 存在しないIDは結果に含めない。
type ProfileLoader interface {
	ResolveUsers(ctx context.Context, ids []string) (map[string]model.UserProfile, error)
}

// Resolver は連絡先一覧を組み立てる。
type Resolver struct {
	contacts ContactLister
	messages SummaryLister
	profiles ProfileLoader
}

// NewResolver はResolverを生成する。
func NewResolver(contacts ContactLister, messages SummaryLister, profiles ProfileLoader) *Resolver {
	return &Resolver{
		contacts: contacts,
		messages: messages,
		profiles: profiles,
	}
}

// Resolve はselfの連絡先一覧を返す。
//
// 明示的な連絡先と、メッセージをやり取りした相手の和集合を1人1行で返す。
// 並び順は最新メッセージの日時の降順で、会話の無い相手は末尾に置く。
// 同順位は最新メッセージIDの昇順、次に相手のIDの昇順で決める。
// プロフィールを解決できない相手（退会済みなど）は含めない。
func (r *Resolver) Resolve(ctx context.Context, selfID string) ([]Entry, error) {
	contacts, err := r.contacts.ListContacts(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("連絡先の取得に失敗しました: %w", err)
	}
	summaries, err := r.messages.Summaries(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("会話サマリーの取得に失敗しました: %w", err)
	}

	type partial struct {
		last     *model.Message
		unread   int
		explicit bool
	}
	byPeer := make(map[string]*partial)
	var order []string
	get := func(peerID string) *partial {
		p, ok := byPeer[peerID]
		if !ok {
			p = &partial{}
			byPeer[peerID] = p
			order = append(order, peerID)
		}
		return p
	}

	for _, c := range contacts {
		if c.PeerID == selfID {
			continue
		}
		get(c.PeerID).explicit = true
	}
	for i := range summaries {
		s := summaries[i]
		if s.PartnerID == selfID {
			continue
		}
		p := get(s.PartnerID)
		last := s.LastMessage
		p.last = &last
		p.unread = s.UnreadCount
	}

	if len(order) == 0 {
		return []Entry{}, nil
	}

	profiles, err := r.profiles.ResolveUsers(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	entries := make([]Entry, 0, len(order))
	for _, peerID := range order {
		profile, ok := profiles[peerID]
		if !ok {
			continue
		}
		p := byPeer[peerID]
		entries = append(entries, Entry{
			Peer:              profile,
			LastMessage:       p.last,
			UnreadCount:       p.unread,
			IsExplicitContact: p.explicit,
		})
	}

	SortEntries(entries)
	return entries, nil
}

// SortEntries は連絡先一覧を表示順に並べ替える。
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})
}

func lastAt(e Entry) time.Time {
	if e.LastMessage == nil {
		return time.Time{}
	}
	return e.LastMessage.CreatedAt
}

func entryLess(a, b Entry) bool {
	ta, tb := lastAt(a), lastAt(b)
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	if a.LastMessage != nil && b.LastMessage != nil && a.LastMessage.ID != b.LastMessage.ID {
		return a.LastMessage.ID < b.LastMessage.ID
	}
	return a.Peer.ID < b.Peer.ID
}
