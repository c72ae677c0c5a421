// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証フローの結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// 認可ガードの判定ラベル
const (
	GuardLocal    = "local"
	GuardProvider = "provider"
	GuardRejected = "rejected"
)

// Recorder はメトリクス記録のインターフェース。
// 認証サービス、ミドルウェア、クリーンアップジョブから利用する。
type Recorder interface {
	RecordAuthAttempt(flow, outcome string, duration time.Duration)
	RecordGuardDecision(decision string)
	RecordCleanup(kind string, removed int)
	SetActiveSessions(n int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts   *prometheus.CounterVec
	authLatency    *prometheus.HistogramVec
	guardDecisions *prometheus.CounterVec
	cleanupRemoved *prometheus.CounterVec
	activeSessions prometheus.Gauge
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelmate_auth_attempts_total",
			Help: "認証フロー別の試行数",
		}, []string{"flow", "outcome"}),
		authLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "travelmate_auth_duration_seconds",
			Help:    "認証フローの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelmate_auth_guard_total",
			Help: "認可ガードの判定経路別の件数",
		}, []string{"decision"}),
		cleanupRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelmate_cleanup_removed_total",
			Help: "クリーンアップで削除された期限切れエントリ数",
		}, []string{"kind"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "travelmate_active_sessions",
			Help: "メモリ上に保持しているセッション数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelmate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.authLatency,
		c.guardDecisions,
		c.cleanupRemoved,
		c.activeSessions,
		c.httpStatus,
	)

	return c
}

// RecordAuthAttempt は認証フローの結果と所要時間を記録する。
func (c *Collector) RecordAuthAttempt(flow, outcome string, duration time.Duration) {
	c.authAttempts.WithLabelValues(flow, outcome).Inc()
	c.authLatency.WithLabelValues(flow).Observe(duration.Seconds())
}

// RecordGuardDecision は認可ガードの判定を記録する。
func (c *Collector) RecordGuardDecision(decision string) {
	c.guardDecisions.WithLabelValues(decision).Inc()
}

// RecordCleanup はクリーンアップで削除した件数を記録する。
func (c *Collector) RecordCleanup(kind string, removed int) {
	c.cleanupRemoved.WithLabelValues(kind).Add(float64(removed))
}

// SetActiveSessions は保持中のセッション数を設定する。
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Noop は何も記録しないRecorder。テストやメトリクス無効時に使う。
type Noop struct{}

func (Noop) RecordAuthAttempt(string, string, time.Duration) {}
func (Noop) RecordGuardDecision(string)                      {}
func (Noop) RecordCleanup(string, int)                       {}
func (Noop) SetActiveSessions(int)                           {}
func (Noop) RecordHTTPStatus(int)                            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Noop{}
)
