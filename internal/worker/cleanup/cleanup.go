// Package cleanup はセッションとプレゼンスの定期メンテナンスジョブを提供する。
// 期限切れセッションの削除と、一定時間操作のないユーザーのオフライン化を行う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/messenger/internal/metrics"
)

// SessionPurger は期限切れセッションを削除する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PresenceResetter は操作のないユーザーをオフラインに戻す。
type PresenceResetter interface {
	ResetStalePresence(ctx context.Context, staleBefore time.Time) (int64, error)
}

const (
	// TaskExpiredSessions は期限切れセッション削除タスクのメトリクスラベル。
	TaskExpiredSessions = "expired_sessions"
	// TaskStalePresence はプレゼンスリセットタスクのメトリクスラベル。
	TaskStalePresence = "stale_presence"

	// DefaultPresenceTTL は最終操作からオフライン扱いにするまでの時間。
	DefaultPresenceTTL = 30 * time.Minute
)

// CleanupJob は定期メンテナンスジョブ。
// 各処理は冪等で、対象が無い場合もエラーにならない。
type CleanupJob struct {
	sessions    SessionPurger
	users       PresenceResetter
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
	now         func() time.Time
	PresenceTTL time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// metricsがnilの場合は記録しない。
func NewCleanupJob(sessions SessionPurger, users PresenceResetter, logger *slog.Logger, m metrics.MetricsCollector) *CleanupJob {
	if m == nil {
		m = metrics.Nop{}
	}
	return &CleanupJob{
		sessions:    sessions,
		users:       users,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
		PresenceTTL: DefaultPresenceTTL,
	}
}

// Run は期限切れセッションの削除とプレゼンスのリセットを順に実行する。
// 前段が失敗した場合は後段を実行せずにエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now().UTC()

	sessions, err := j.runTask(TaskExpiredSessions, func() (int64, error) {
		return j.sessions.DeleteExpired(ctx, now)
	})
	if err != nil {
		return err
	}

	presence, err := j.runTask(TaskStalePresence, func() (int64, error) {
		return j.users.ResetStalePresence(ctx, now.Add(-j.PresenceTTL))
	})
	if err != nil {
		return err
	}

	j.logger.Info("メンテナンスジョブが完了しました",
		slog.Int64("expired_sessions", sessions),
		slog.Int64("stale_presence", presence),
		slog.Duration("presence_ttl", j.PresenceTTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// runTask はタスクを1つ実行し、処理件数をメトリクスに記録する。
func (j *CleanupJob) runTask(task string, fn func() (int64, error)) (int64, error) {
	count, err := fn()
	if err != nil {
		j.logger.Error("メンテナンスタスクの実行に失敗しました",
			slog.String("task", task),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%sの実行に失敗: %w", task, err)
	}
	j.metrics.RecordCleanup(task, count)
	return count, nil
}

// Start は起動直後と以降intervalごとにRunを実行し、ctxがキャンセルされるまでブロックする。
// 失敗が続く間はnextDelayに従って早めに再試行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	failures := 0
	for {
		if err := j.Run(ctx); err != nil {
			failures++
			j.logger.Error("cleanup job failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", failures),
			)
		} else {
			failures = 0
		}

		timer := time.NewTimer(nextDelay(failures, interval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// initialRetryDelay は失敗直後の再試行までの待ち時間。
const initialRetryDelay = 30 * time.Second

// nextDelay は連続失敗回数から次回実行までの待ち時間を返す。
// 失敗時は30秒から2倍ずつ延ばし、intervalを上限とする。
func nextDelay(failures int, interval time.Duration) time.Duration {
	if failures == 0 {
		return interval
	}
	delay := initialRetryDelay
	for i := 1; i < failures && delay < interval; i++ {
		delay *= 2
	}
	if delay > interval {
		return interval
	}
	return delay
}
