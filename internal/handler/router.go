package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/messenger/internal/metrics"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 運用
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// チャット
	ChatService    ChatServiceInterface
	ContactService ContactServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Metrics → SecurityHeaders → CORS
//	  → (/api) Session → Logging → CSRF → RateLimit(General) [→ RateLimit(Send)]
//
// 認証ルート（/auth/*）と運用エンドポイントはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	chatHandler := NewChatHandler(deps.ChatService)
	contactHandler := NewContactHandler(deps.ContactService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.With(middleware.NewLoggingMiddleware(logger)).
		Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		sendLimit := deps.RateLimiter.SendMiddleware()

		// チャット画面
		r.Get("/api/chat", chatHandler.GetChat)
		r.With(sendLimit).Post("/api/chat", chatHandler.PostChat)

		// メッセージ送受信
		r.Route("/api/conversations/{peerID}/messages", func(r chi.Router) {
			r.Get("/", chatHandler.PollMessages)
			r.With(sendLimit).Post("/", chatHandler.SendMessage)
		})

		// 連絡先
		r.Route("/api/contacts", func(r chi.Router) {
			r.Get("/", contactHandler.ListContacts)
			r.Post("/", contactHandler.AddContact)
			r.Delete("/{peerID}", contactHandler.RemoveContact)
		})

		// ユーザー
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Patch("/me", userHandler.UpdateProfile)
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
