// Package memrepo はテスト専用のフェイクで、repositoryパッケージのインターフェースを
// インメモリで実装する。本番のサーバー・ワーカーからは使用しない。
// サービス層とハンドラーのテストで、PostgreSQLと同じ一意制約・外部キー・並び順の
// 振る舞いを再現する。IDの形式（UUID）は検証せず、未知のIDは単に存在しない扱いになる。
package memrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/messenger/internal/model"
	"github.com/hitoshi/messenger/internal/repository"
)

// Store は全テーブルを保持する。各リポジトリはStoreを共有する。
type Store struct {
	mu       sync.Mutex
	users    map[string]*model.User
	sessions map[string]*model.Session
	contacts map[[2]string]*model.Contact
	messages []*model.Message
	nextID   int64
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		contacts: make(map[[2]string]*model.Contact),
	}
}

// Users はUserRepositoryを返す。
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Sessions はSessionRepositoryを返す。
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s: s} }

// Contacts はContactRepositoryを返す。
func (s *Store) Contacts() *ContactRepo { return &ContactRepo{s: s} }

// Messages はMessageRepositoryを返す。
func (s *Store) Messages() *MessageRepo { return &MessageRepo{s: s} }

// AddUser はテスト用にユーザーを直接登録する。
func (s *Store) AddUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// AllMessages は保存されている全メッセージのコピーを挿入順で返す。
func (s *Store) AllMessages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

// --- users ---

// UserRepo はrepository.UserRepositoryのインメモリ実装。
type UserRepo struct{ s *Store }

func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.User
	seen := make(map[string]bool)
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok && !seen[id] {
			seen[id] = true
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *UserRepo) FindByNickname(ctx context.Context, nickname string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Nickname == nickname {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) ListExcept(ctx context.Context, userID string) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.User
	for _, u := range r.s.users {
		if u.ID != userID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out, nil
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Nickname == user.Nickname {
			return repository.ErrDuplicateNickname
		}
	}
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	for _, u := range r.s.users {
		if u.ID != user.ID && u.Nickname == user.Nickname {
			return repository.ErrDuplicateNickname
		}
	}
	existing.Nickname = user.Nickname
	existing.AvatarGlyph = user.AvatarGlyph
	existing.ThemePreference = user.ThemePreference
	existing.UpdatedAt = user.UpdatedAt
	return nil
}

func (r *UserRepo) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		u.IsOnline = online
		t := at
		u.LastSeenAt = &t
	}
	return nil
}

func (r *UserRepo) ResetStalePresence(ctx context.Context, staleBefore time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, u := range r.s.users {
		if u.IsOnline && (u.LastSeenAt == nil || u.LastSeenAt.Before(staleBefore)) {
			u.IsOnline = false
			n++
		}
	}
	return n, nil
}

// DeleteByID はユーザーを削除し、関連行をCASCADE削除する。
func (r *UserRepo) DeleteByID(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	delete(r.s.users, id)
	for k, sess := range r.s.sessions {
		if sess.UserID == id {
			delete(r.s.sessions, k)
		}
	}
	for k := range r.s.contacts {
		if k[0] == id || k[1] == id {
			delete(r.s.contacts, k)
		}
	}
	kept := r.s.messages[:0]
	for _, m := range r.s.messages {
		if m.SenderID != id && m.ReceiverID != id {
			kept = append(kept, m)
		}
	}
	r.s.messages = kept
	return nil
}

// --- sessions ---

// SessionRepo はrepository.SessionRepositoryのインメモリ実装。
type SessionRepo struct{ s *Store }

func (r *SessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *session
	r.s.sessions[session.ID] = &cp
	return nil
}

func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (r *SessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r *SessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, k)
		}
	}
	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, sess := range r.s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(r.s.sessions, k)
			n++
		}
	}
	return n, nil
}

// --- contacts ---

// ContactRepo はrepository.ContactRepositoryのインメモリ実装。
type ContactRepo struct{ s *Store }

func (r *ContactRepo) Insert(ctx context.Context, contact *model.Contact) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[contact.OwnerID]; !ok {
		return false, repository.ErrUnknownUser
	}
	if _, ok := r.s.users[contact.PeerID]; !ok {
		return false, repository.ErrUnknownUser
	}
	key := [2]string{contact.OwnerID, contact.PeerID}
	if _, ok := r.s.contacts[key]; ok {
		return false, nil
	}
	cp := *contact
	r.s.contacts[key] = &cp
	return true, nil
}

func (r *ContactRepo) FindByOwnerAndPeer(ctx context.Context, ownerID, peerID string) (*model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contacts[[2]string{ownerID, peerID}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *ContactRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Contact
	for k, c := range r.s.contacts {
		if k[0] == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ContactRepo) Delete(ctx context.Context, ownerID, peerID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]string{ownerID, peerID}
	if _, ok := r.s.contacts[key]; !ok {
		return false, nil
	}
	delete(r.s.contacts, key)
	return true, nil
}

// --- messages ---

// MessageRepo はrepository.MessageRepositoryのインメモリ実装。
type MessageRepo struct{ s *Store }

func (r *MessageRepo) Create(ctx context.Context, message *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[message.SenderID]; !ok {
		return repository.ErrUnknownUser
	}
	if _, ok := r.s.users[message.ReceiverID]; !ok {
		return repository.ErrUnknownUser
	}
	r.s.nextID++
	message.ID = r.s.nextID
	cp := *message
	r.s.messages = append(r.s.messages, &cp)
	return nil
}

// less はcreated_at昇順、同時刻はID昇順の比較。
func less(a, b *model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *MessageRepo) between(userA, userB string) []*model.Message {
	var out []*model.Message
	for _, m := range r.s.messages {
		if m.Involves(userA, userB) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r *MessageRepo) ListBetween(ctx context.Context, userA, userB string) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.between(userA, userB), nil
}

func (r *MessageRepo) FindLastBetween(ctx context.Context, userA, userB string) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msgs := r.between(userA, userB)
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[len(msgs)-1], nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, senderID, receiverID string, atMost, readAt time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID &&
			m.Status.CanTransitionTo(model.MessageStatusRead) && !m.CreatedAt.After(atMost) {
			m.Status = model.MessageStatusRead
			t := readAt
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, fromID, toID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, m := range r.s.messages {
		if m.SenderID == fromID && m.ReceiverID == toID && m.Status.IsUnread() {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) ListSummaries(ctx context.Context, userID string) ([]repository.ConversationSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	latest := make(map[string]*model.Message)
	unread := make(map[string]int)
	for _, m := range r.s.messages {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		partner := m.PartnerOf(userID)
		if cur, ok := latest[partner]; !ok || less(cur, m) {
			latest[partner] = m
		}
		if m.ReceiverID == userID && m.Status.IsUnread() {
			unread[partner]++
		}
	}
	out := make([]repository.ConversationSummary, 0, len(latest))
	for partner, m := range latest {
		out = append(out, repository.ConversationSummary{
			PartnerID:   partner,
			LastMessage: *m,
			UnreadCount: unread[partner],
		})
	}
	return out, nil
}

// SetStatus はテスト用にメッセージの状態を直接書き換える。
func (s *Store) SetStatus(id int64, status model.MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			m.Status = status
		}
	}
}

var (
	_ repository.UserRepository    = (*UserRepo)(nil)
	_ repository.SessionRepository = (*SessionRepo)(nil)
	_ repository.ContactRepository = (*ContactRepo)(nil)
	_ repository.MessageRepository = (*MessageRepo)(nil)
)
