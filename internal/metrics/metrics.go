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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordFetchSuccess(feedID string)
	RecordFetchFailure(feedID string, kind string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordArticlesUpserted(count int)
	RecordSessionFinished(state string, duration time.Duration)
	RecordFeedsSkipped(count int)
	RecordAutoDisable(feedID string)
	RecordTTLCalculation()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess     prometheus.Counter
	fetchFail        *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	articlesUpserted prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	feedsSkipped     prometheus.Counter
	autoDisabled     prometheus.Counter
	ttlCalculations  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpulse_fetch_success_total",
			Help: "フィードフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpulse_fetch_fail_total",
			Help: "失敗種別ごとのフィードフェッチ失敗数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpulse_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedpulse_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpulse_articles_upserted_total",
			Help: "アップサートされた記事の合計数",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpulse_refresh_sessions_total",
			Help: "終了状態ごとの更新セッション数",
		}, []string{"state"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedpulse_refresh_session_duration_seconds",
			Help:    "更新セッションの所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		feedsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpulse_feeds_skipped_total",
			Help: "更新期限前のためスキップされたフィード数",
		}),
		autoDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpulse_feeds_auto_disabled_total",
			Help: "連続失敗により自動無効化されたフィード数",
		}),
		ttlCalculations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpulse_ttl_calculations_total",
			Help: "更新間隔（TTL）計算の実行回数",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.httpStatus,
		c.fetchLatency,
		c.articlesUpserted,
		c.sessionsFinished,
		c.sessionDuration,
		c.feedsSkipped,
		c.autoDisabled,
		c.ttlCalculations,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(feedID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を失敗種別とともに記録する。
func (c *Collector) RecordFetchFailure(feedID string, kind string) {
	c.fetchFail.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordArticlesUpserted はアップサートされた記事数を記録する。
func (c *Collector) RecordArticlesUpserted(count int) {
	c.articlesUpserted.Add(float64(count))
}

// RecordSessionFinished は更新セッションの終了を状態と所要時間とともに記録する。
func (c *Collector) RecordSessionFinished(state string, duration time.Duration) {
	c.sessionsFinished.WithLabelValues(state).Inc()
	c.sessionDuration.Observe(duration.Seconds())
}

// RecordFeedsSkipped は更新期限前のためスキップされたフィード数を記録する。
func (c *Collector) RecordFeedsSkipped(count int) {
	c.feedsSkipped.Add(float64(count))
}

// RecordAutoDisable はフィードの自動無効化を記録する。
func (c *Collector) RecordAutoDisable(feedID string) {
	c.autoDisabled.Inc()
}

// RecordTTLCalculation はTTL計算の実行を記録する。
func (c *Collector) RecordTTLCalculation() {
	c.ttlCalculations.Inc()
}

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
