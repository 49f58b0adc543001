package app

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/messenger/internal/auth"
	"github.com/hitoshi/messenger/internal/chat"
	"github.com/hitoshi/messenger/internal/config"
	"github.com/hitoshi/messenger/internal/contact"
	"github.com/hitoshi/messenger/internal/conversation"
	"github.com/hitoshi/messenger/internal/database"
	"github.com/hitoshi/messenger/internal/handler"
	"github.com/hitoshi/messenger/internal/message"
	"github.com/hitoshi/messenger/internal/metrics"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/hitoshi/messenger/internal/repository"
	"github.com/hitoshi/messenger/internal/security"
	"github.com/hitoshi/messenger/internal/user"
	"github.com/prometheus/client_golang/prometheus"
)

const apiShutdownTimeout = 30 * time.Second

// buildRouterDeps はPostgreSQLリポジトリの上に全サービスを組み立てる。
func buildRouterDeps(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, rl *middleware.RateLimiter) *handler.RouterDeps {
	users := repository.NewPostgresUserRepo(db)
	sessions := repository.NewPostgresSessionRepo(db)
	contacts := repository.NewPostgresContactRepo(db)
	messages := repository.NewPostgresMessageRepo(db)

	sanitizer := security.NewTextSanitizer()
	collector := metrics.NewCollector(reg)

	authService := auth.NewService(users, sessions, sanitizer, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	userService := user.NewService(users, sessions, sanitizer)
	contactService := contact.NewService(contacts, users, collector)
	messageService := message.NewService(messages, users, collector, cfg.MessageMaxLength)
	resolver := conversation.NewResolver(contactService, messageService, userService)
	controller := chat.NewController(userService, contactService, messageService, resolver, collector, chat.Config{
		Location: cfg.DisplayLocation,
	})

	return &handler.RouterDeps{
		SessionFinder:     sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
		},
		Logger: slog.Default(),

		HealthChecker: db,
		Metrics:       collector,
		Gatherer:      reg,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ChatService:    controller,
		ContactService: handler.NewContactServiceAdapter(resolver, controller, contactService),
		UserService:    userService,
	}
}

// runServe はAPIサーバーを起動し、SIGINT・SIGTERMでグレースフルに停止する。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established")

	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.NewRouter(buildRouterDeps(cfg, db, newRegistry(), rateLimiter)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("API server starting", slog.String("addr", server.Addr))
	if err := serveUntilDone(ctx, server, apiShutdownTimeout); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}
