package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/messenger/internal/config"
	"github.com/hitoshi/messenger/internal/database"
	"github.com/hitoshi/messenger/internal/metrics"
	"github.com/hitoshi/messenger/internal/repository"
	"github.com/hitoshi/messenger/internal/worker/cleanup"
)

// runWorker はメンテナンスジョブを定期実行する。
// メトリクスはSERVER_PORTの/metricsで公開し、SIGINT・SIGTERMで停止する。
func runWorker(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established (worker)")

	reg := newRegistry()
	job := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresUserRepo(db),
		slog.Default(),
		metrics.NewCollector(reg),
	)
	job.PresenceTTL = cfg.PresenceTTL

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsDone := make(chan error, 1)
	go func() { metricsDone <- serveUntilDone(ctx, metricsServer, 5*time.Second) }()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("presence_ttl", cfg.PresenceTTL),
	)
	job.Start(ctx, cfg.CleanupInterval)

	if err := <-metricsDone; err != nil {
		slog.Warn("metrics server stopped with error", slog.String("error", err.Error()))
	}
	slog.Info("worker stopped gracefully")
	return nil
}
