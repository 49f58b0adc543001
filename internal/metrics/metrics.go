// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordMessageSent()
	RecordMessagesRead(count int64)
	RecordContactCreated(source string)
	RecordAutoLinkFailure()
	RecordHTTPStatus(statusCode int)
	RecordPollLatency(duration time.Duration)
	RecordCleanup(task string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	messagesSent    prometheus.Counter
	messagesRead    prometheus.Counter
	contactsCreated *prometheus.CounterVec
	autoLinkFail    prometheus.Counter
	httpStatus      *prometheus.CounterVec
	pollLatency     prometheus.Histogram
	cleanupRows     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "送信されたメッセージの合計数",
		}),
		messagesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_messages_read_total",
			Help: "既読に遷移したメッセージの合計数",
		}),
		contactsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_contacts_created_total",
			Help: "作成された連絡先の合計数（作成経路別）",
		}, []string{"source"}),
		autoLinkFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_autolink_failures_total",
			Help: "自動リンクに失敗した回数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "messenger_poll_latency_seconds",
			Help:    "ポーリング処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cleanupRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_cleanup_rows_total",
			Help: "クリーンアップで処理された行数（タスク別）",
		}, []string{"task"}),
	}

	reg.MustRegister(
		c.messagesSent,
		c.messagesRead,
		c.contactsCreated,
		c.autoLinkFail,
		c.httpStatus,
		c.pollLatency,
		c.cleanupRows,
	)

	return c
}

// RecordMessageSent はメッセージ送信を記録する。
func (c *Collector) RecordMessageSent() {
	c.messagesSent.Inc()
}

// RecordMessagesRead は既読になったメッセージ数を記録する。
func (c *Collector) RecordMessagesRead(count int64) {
	if count <= 0 {
		return
	}
	c.messagesRead.Add(float64(count))
}

// RecordContactCreated は連絡先の作成を記録する。
func (c *Collector) RecordContactCreated(source string) {
	c.contactsCreated.WithLabelValues(source).Inc()
}

// RecordAutoLinkFailure は自動リンクの失敗を記録する。
func (c *Collector) RecordAutoLinkFailure() {
	c.autoLinkFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPollLatency はポーリングのレイテンシを記録する。
func (c *Collector) RecordPollLatency(duration time.Duration) {
	c.pollLatency.Observe(duration.Seconds())
}

// RecordCleanup はクリーンアップタスクが処理した行数を記録する。
func (c *Collector) RecordCleanup(task string, count int64) {
	c.cleanupRows.WithLabelValues(task).Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordMessageSent() {}
func (Nop) RecordMessagesRead(int64) {}
func (Nop) RecordContactCreated(string) {}
func (Nop) RecordAutoLinkFailure() {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordPollLatency(time.Duration) {}
func (Nop) RecordCleanup(string, int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
