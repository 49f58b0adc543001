package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hitoshi/messenger/internal/auth"
	"github.com/hitoshi/messenger/internal/chat"
	"github.com/hitoshi/messenger/internal/contact"
	"github.com/hitoshi/messenger/internal/conversation"
	"github.com/hitoshi/messenger/internal/database"
	"github.com/hitoshi/messenger/internal/message"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/hitoshi/messenger/internal/repository"
	"github.com/hitoshi/messenger/internal/repository/memrepo"
	"github.com/hitoshi/messenger/internal/security"
	"github.com/hitoshi/messenger/internal/user"
	"golang.org/x/crypto/bcrypt"
)

// testRepos はテストサーバーが使うリポジトリ一式。
type testRepos struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	contacts repository.ContactRepository
	messages repository.MessageRepository
}

// newTestServer はインメモリリポジトリと実サービスで構成したルーターを返す。
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store := memrepo.New()
	return newTestServerWith(t, testRepos{
		users:    store.Users(),
		sessions: store.Sessions(),
		contacts: store.Contacts(),
		messages: store.Messages(),
	})
}

// newPostgresTestServer はPostgreSQLリポジトリで構成したルーターを返す。
// TEST_DATABASE_URLが未設定、または接続できない場合はスキップする。
// 他パッケージのテストとDBを共有するため、テーブルは空にしない。ニックネームは呼び出し側で一意にする。
func newPostgresTestServer(t *testing.T) http.Handler {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}
	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	return newTestServerWith(t, testRepos{
		users:    repository.NewPostgresUserRepo(db),
		sessions: repository.NewPostgresSessionRepo(db),
		contacts: repository.NewPostgresContactRepo(db),
		messages: repository.NewPostgresMessageRepo(db),
	})
}

func newTestServerWith(t *testing.T, repos testRepos) http.Handler {
	t.Helper()
	sanitizer := security.NewTextSanitizer()

	authSvc := auth.NewService(repos.users, repos.sessions, sanitizer, auth.ServiceConfig{
		SessionMaxAge: 3600,
		BcryptCost:    bcrypt.MinCost,
	})
	userSvc := user.NewService(repos.users, repos.sessions, sanitizer)
	contactSvc := contact.NewService(repos.contacts, repos.users, nil)
	messageSvc := message.NewService(repos.messages, repos.users, nil, 0)
	resolver := conversation.NewResolver(contactSvc, messageSvc, userSvc)
	controller := chat.NewController(userSvc, contactSvc, messageSvc, resolver, nil, chat.Config{})

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		SessionFinder:     repos.sessions,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       authSvc,
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 3600},
		ChatService:       controller,
		ContactService:    NewContactServiceAdapter(resolver, controller, contactSvc),
		UserService:       userSvc,
	})
}

// testClient はCookieを保持してルーターにリクエストを送るテスト用クライアント。
type testClient struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]string
}

func newTestClient(t *testing.T, h http.Handler) *testClient {
	return &testClient{t: t, h: h, cookies: map[string]string{}}
}

func (c *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("failed to encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if token, ok := c.cookies["csrf_token"]; ok {
		req.Header.Set("X-CSRF-Token", token)
	}

	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck.Value
	}
	return w
}

// register はユーザーを登録してCSRFトークンを取得し、ユーザーIDを返す。
func (c *testClient) register(nickname string) string {
	c.t.Helper()
	w := c.do(http.MethodPost, "/auth/register", map[string]string{
		"nickname": nickname,
		"password": "password123",
	})
	if w.Code != http.StatusCreated {
		c.t.Fatalf("register %s: status = %d, body = %s", nickname, w.Code, w.Body.String())
	}
	u := decodeBody[userResponse](c.t, w)

	if w := c.do(http.MethodGet, "/api/csrf-token", nil); w.Code != http.StatusOK {
		c.t.Fatalf("csrf-token: status = %d", w.Code)
	}
	return u.ID
}

func findEntry(entries []contactEntryResponse, peerID string) *contactEntryResponse {
	for i := range entries {
		if entries[i].Peer.ID == peerID {
			return &entries[i]
		}
	}
	return nil
}

type contactsBody struct {
	Contacts []contactEntryResponse `json:"contacts"`
}

type pollBody struct {
	Messages []polledMessageResponse `json:"messages"`
}

// --- テスト ---

func TestIntegration_Unauthenticated_Returns401(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	for _, path := range []string{"/api/chat", "/api/contacts", "/api/users"} {
		w := c.do(http.MethodGet, path, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: status = %d, want 401", path, w.Code)
		}
	}
}

func TestIntegration_PostWithoutCSRFToken_Returns403(t *testing.T) {
	h := newTestServer(t)
	alice := newTestClient(t, h)
	alice.register("alice")
	delete(alice.cookies, "csrf_token")

	w := alice.do(http.MethodPost, "/api/contacts", map[string]string{"peer_id": "anyone"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestIntegration_DuplicateNickname_Returns409(t *testing.T) {
	h := newTestServer(t)
	newTestClient(t, h).register("alice")

	w := newTestClient(t, h).do(http.MethodPost, "/auth/register", map[string]string{
		"nickname": "alice",
		"password": "password123",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestIntegration_ConversationFlow(t *testing.T) {
	h := newTestServer(t)
	alice := newTestClient(t, h)
	bob := newTestClient(t, h)
	aliceID := alice.register("alice")
	bobID := bob.register("bob")

	// aliceがbobへ送信
	w := alice.do(http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", bobID), map[string]string{"content": "hello bob"})
	if w.Code != http.StatusCreated {
		t.Fatalf("send: status = %d, body = %s", w.Code, w.Body.String())
	}
	sent := decodeBody[messageResponse](t, w)
	if sent.Status != "sent" || sent.SenderID != aliceID || sent.ReceiverID != bobID {
		t.Errorf("unexpected sent message %+v", sent)
	}

	// 空白のみの送信は何もしない
	if w := alice.do(http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", bobID), map[string]string{"content": "   "}); w.Code != http.StatusNoContent {
		t.Errorf("blank send: status = %d, want 204", w.Code)
	}

	// bobの連絡先には自動リンクされたaliceが未読1件で表示される
	w = bob.do(http.MethodGet, "/api/contacts", nil)
	contacts := decodeBody[contactsBody](t, w)
	entry := findEntry(contacts.Contacts, aliceID)
	if entry == nil {
		t.Fatalf("alice missing from bob's contacts: %+v", contacts.Contacts)
	}
	if entry.UnreadCount != 1 || entry.LastMessage == nil || entry.LastMessage.Content != "hello bob" || !entry.IsExplicitContact {
		t.Errorf("unexpected entry %+v", entry)
	}

	// bobのポーリングで既読になる
	w = bob.do(http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", aliceID), nil)
	polled := decodeBody[pollBody](t, w)
	if len(polled.Messages) != 1 || polled.Messages[0].IsMine || polled.Messages[0].Status != "read" {
		t.Fatalf("unexpected poll result %+v", polled.Messages)
	}

	// aliceからも既読状態が見える
	w = alice.do(http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", bobID), nil)
	polled = decodeBody[pollBody](t, w)
	if len(polled.Messages) != 1 || !polled.Messages[0].IsMine || polled.Messages[0].Status != "read" {
		t.Errorf("unexpected poll result for sender %+v", polled.Messages)
	}

	// チャット画面から返信
	w = bob.do(http.MethodPost, "/api/chat?peer_id="+aliceID, map[string]string{"content": "hi alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("post chat: status = %d, body = %s", w.Code, w.Body.String())
	}
	view := decodeBody[chatViewResponse](t, w)
	if view.Sent == nil || len(view.Messages) != 2 || view.ActivePeer == nil || view.ActivePeer.ID != aliceID {
		t.Errorf("unexpected view %+v", view)
	}

	w = alice.do(http.MethodGet, "/api/contacts", nil)
	contacts = decodeBody[contactsBody](t, w)
	if e := findEntry(contacts.Contacts, bobID); e == nil || e.UnreadCount != 1 || e.LastMessage.Content != "hi alice" {
		t.Errorf("unexpected alice entry for bob %+v", e)
	}
}

func TestIntegration_ContactManagement(t *testing.T) {
	h := newTestServer(t)
	alice := newTestClient(t, h)
	bob := newTestClient(t, h)
	alice.register("alice")
	bobID := bob.register("bob")

	w := alice.do(http.MethodPost, "/api/contacts", map[string]string{"peer_id": bobID})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := alice.do(http.MethodPost, "/api/contacts", map[string]string{"peer_id": bobID}); w.Code != http.StatusOK {
		t.Errorf("re-add: status = %d, want 200", w.Code)
	}
	if w := alice.do(http.MethodPost, "/api/contacts", map[string]string{"peer_id": "no-such-user"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown peer: status = %d, want 404", w.Code)
	}

	// 一方向のみのため、bob側には表示されない
	w = bob.do(http.MethodGet, "/api/contacts", nil)
	if contacts := decodeBody[contactsBody](t, w); len(contacts.Contacts) != 0 {
		t.Errorf("bob should have no contacts, got %+v", contacts.Contacts)
	}

	if w := alice.do(http.MethodDelete, "/api/contacts/"+bobID, nil); w.Code != http.StatusNoContent {
		t.Errorf("remove: status = %d, want 204", w.Code)
	}
	w = alice.do(http.MethodGet, "/api/contacts", nil)
	if contacts := decodeBody[contactsBody](t, w); len(contacts.Contacts) != 0 {
		t.Errorf("contacts should be empty after removal, got %+v", contacts.Contacts)
	}
}

func TestIntegration_WithdrawRemovesPeer(t *testing.T) {
	h := newTestServer(t)
	alice := newTestClient(t, h)
	bob := newTestClient(t, h)
	alice.register("alice")
	bobID := bob.register("bob")

	alice.do(http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", bobID), map[string]string{"content": "bye"})

	if w := bob.do(http.MethodDelete, "/api/users/me", nil); w.Code != http.StatusNoContent {
		t.Fatalf("withdraw: status = %d, body = %s", w.Code, w.Body.String())
	}

	w := alice.do(http.MethodGet, "/api/chat?peer_id="+bobID, nil)
	assertErrorCode(t, w, http.StatusNotFound, "PEER_NOT_FOUND")

	w = alice.do(http.MethodGet, "/api/contacts", nil)
	if contacts := decodeBody[contactsBody](t, w); len(contacts.Contacts) != 0 {
		t.Errorf("withdrawn peer should disappear, got %+v", contacts.Contacts)
	}

	// 退会済みセッションは無効
	if w := bob.do(http.MethodGet, "/api/chat", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("withdrawn session: status = %d, want 401", w.Code)
	}
}

func TestIntegration_LogoutInvalidatesSession(t *testing.T) {
	h := newTestServer(t)
	alice := newTestClient(t, h)
	alice.register("alice")

	sessionID := alice.cookies[middleware.SessionCookieName]
	if w := alice.do(http.MethodPost, "/auth/logout", nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout: status = %d", w.Code)
	}

	alice.cookies[middleware.SessionCookieName] = sessionID
	if w := alice.do(http.MethodGet, "/auth/me", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("me after logout: status = %d, want 401", w.Code)
	}
}

func TestIntegration_MalformedPeerID_Returns404(t *testing.T) {
	servers := []struct {
		name string
		new  func(t *testing.T) http.Handler
	}{
		{"memory", newTestServer},
		{"postgres", newPostgresTestServer},
	}
	for _, srv := range servers {
		t.Run(srv.name, func(t *testing.T) {
			alice := newTestClient(t, srv.new(t))
			alice.register("alice-" + uuid.NewString()[:8])

			for _, peer := range []string{"abc", "not-a-uuid", "12345"} {
				if w := alice.do(http.MethodGet, "/api/chat?peer_id="+peer, nil); w.Code != http.StatusNotFound {
					t.Errorf("GET /api/chat?peer_id=%s: status = %d, body = %s", peer, w.Code, w.Body.String())
				}
				if w := alice.do(http.MethodGet, "/api/conversations/"+peer+"/messages", nil); w.Code != http.StatusNotFound {
					t.Errorf("poll %s: status = %d, body = %s", peer, w.Code, w.Body.String())
				}
				if w := alice.do(http.MethodPost, "/api/conversations/"+peer+"/messages", map[string]string{"content": "hi"}); w.Code != http.StatusNotFound {
					t.Errorf("send to %s: status = %d, body = %s", peer, w.Code, w.Body.String())
				}
				if w := alice.do(http.MethodPost, "/api/contacts", map[string]string{"peer_id": peer}); w.Code != http.StatusNotFound {
					t.Errorf("add %s: status = %d, body = %s", peer, w.Code, w.Body.String())
				}
				if w := alice.do(http.MethodDelete, "/api/contacts/"+peer, nil); w.Code != http.StatusNoContent {
					t.Errorf("remove %s: status = %d, want 204", peer, w.Code)
				}
			}
		})
	}
}

func TestIntegration_MessageContentRoundTrips(t *testing.T) {
	h := newTestServer(t)
	alice := newTestClient(t, h)
	bob := newTestClient(t, h)
	alice.register("alice")
	bobID := bob.register("bob")

	bodies := []string{"x<y and y>z", "<hello>", "fish & chips &amp; more"}
	for _, body := range bodies {
		w := alice.do(http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", bobID), map[string]string{"content": body})
		if w.Code != http.StatusCreated {
			t.Fatalf("send %q: status = %d, body = %s", body, w.Code, w.Body.String())
		}
	}

	w := alice.do(http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", bobID), nil)
	got := decodeBody[pollBody](t, w).Messages
	if len(got) != len(bodies) {
		t.Fatalf("len(messages) = %d, want %d", len(got), len(bodies))
	}
	for i, body := range bodies {
		if got[i].Content != body {
			t.Errorf("messages[%d].Content = %q, want %q", i, got[i].Content, body)
		}
	}
}
