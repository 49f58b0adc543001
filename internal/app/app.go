package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/messenger/internal/config"
	"github.com/hitoshi/messenger/internal/database"
	"github.com/hitoshi/messenger/internal/logger"
	"github.com/hitoshi/messenger/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// Init は環境変数から設定を読み込み、設定されたレベルでJSONログを構成する。
// 設定の読み込みに失敗した場合もinfoレベルのロガーは構成済みになる。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, "info")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// runners はDBを使うサブコマンドの実行関数。
var runners = map[Command]func(*config.Config) error{
	CommandServe:   runServe,
	CommandWorker:  runWorker,
	CommandMigrate: runMigrate,
}

// Run はos.Args[1:]からサブコマンドを選び、対応するモードで起動する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)
	if !cmd.NeedsDatabase() {
		return runHealthcheck(healthURL(os.Getenv("SERVER_PORT")))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("log_level", cfg.LogLevel),
	)
	return runners[cmd](cfg)
}

// newRegistry はGo/プロセスのコレクターを登録済みのレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// rateLimiterConfig は設定値（req/min）からレートリミッター設定（req/sec）を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.SendRate = rate.Limit(float64(cfg.RateLimitSend) / 60)
	return rlCfg
}

// runMigrate は未適用のマイグレーションをすべて適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("マイグレーションを開始します",
		slog.String("database_url", redactDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("マイグレーションが完了しました", slog.Uint64("schema_version", uint64(version)))
	return nil
}

func healthURL(port string) string {
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port + "/health"
}

// runHealthcheck はdistrolessイメージ用のヘルスチェック。targetが200を返さなければエラー。
func runHealthcheck(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// redactDatabaseURL はログ出力用にパスワードを伏せたURLを返す。解析できない場合は全体を伏せる。
func redactDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

// signalContext はSIGINT・SIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// serveUntilDone はctxがキャンセルされるまでsrvを動かし、その後timeout以内に停止させる。
// 起動に失敗した場合はその時点でエラーを返す。
func serveUntilDone(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return nil
}
