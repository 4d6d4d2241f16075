// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// スキャン結果のラベル値
const (
	ScanResultSuccess = "success"
	ScanResultFailure = "failure"
	ScanResultAborted = "aborted"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スキャンワーカーとクリーンアップジョブから利用する。
type MetricsCollector interface {
	RecordScan(result string, duration time.Duration)
	RecordEvaluated(count int)
	RecordRejections(reason string, count int)
	RecordOutperformer(classification, noiseType string)
	RecordMalformed(code string)
	RecordProviderError(stage string)
	RecordStored(count int)
	RecordCleanupDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scans          *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	evaluated      prometheus.Counter
	rejections     *prometheus.CounterVec
	outperformers  *prometheus.CounterVec
	malformed      *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	stored         prometheus.Counter
	cleanupDeleted prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outperformer_scans_total",
			Help: "結果別のスキャンサイクル数",
		}, []string{"result"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outperformer_scan_duration_seconds",
			Help:    "スキャンサイクルの所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		evaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outperformer_videos_evaluated_total",
			Help: "判定した動画の合計数",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outperformer_rejections_total",
			Help: "除外理由別の動画数",
		}, []string{"reason"}),
		outperformers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outperformer_detected_total",
			Help: "分類・ノイズ種別ごとに検出したアウトパフォーマー数",
		}, []string{"classification", "noise_type"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outperformer_malformed_records_total",
			Help: "エラーコード別の不正な入力レコード数",
		}, []string{"code"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outperformer_provider_errors_total",
			Help: "取得段階別のメトリクスプロバイダのエラー数",
		}, []string{"stage"}),
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outperformer_stored_total",
			Help: "新規に保存したアウトパフォーマーの合計数",
		}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outperformer_cleanup_deleted_total",
			Help: "保持期間を過ぎて削除した履歴の合計数",
		}),
	}

	reg.MustRegister(
		c.scans,
		c.scanDuration,
		c.evaluated,
		c.rejections,
		c.outperformers,
		c.malformed,
		c.providerErrors,
		c.stored,
		c.cleanupDeleted,
	)

	return c
}

// RecordScan はスキャンサイクルの結果と所要時間を記録する。
func (c *Collector) RecordScan(result string, duration time.Duration) {
	c.scans.WithLabelValues(result).Inc()
	c.scanDuration.Observe(duration.Seconds())
}

// RecordEvaluated は判定した動画数を記録する。
func (c *Collector) RecordEvaluated(count int) {
	c.evaluated.Add(float64(count))
}

// RecordRejections は除外理由ごとの動画数を記録する。
func (c *Collector) RecordRejections(reason string, count int) {
	c.rejections.WithLabelValues(reason).Add(float64(count))
}

// RecordOutperformer は検出したアウトパフォーマーを記録する。
func (c *Collector) RecordOutperformer(classification, noiseType string) {
	c.outperformers.WithLabelValues(classification, noiseType).Inc()
}

// RecordMalformed は不正な入力レコードを記録する。
func (c *Collector) RecordMalformed(code string) {
	c.malformed.WithLabelValues(code).Inc()
}

// RecordProviderError はメトリクスプロバイダのエラーを記録する。
func (c *Collector) RecordProviderError(stage string) {
	c.providerErrors.WithLabelValues(stage).Inc()
}

// RecordStored は新規に保存した件数を記録する。
func (c *Collector) RecordStored(count int) {
	c.stored.Add(float64(count))
}

// RecordCleanupDeleted は削除した履歴の件数を記録する。
func (c *Collector) RecordCleanupDeleted(count int64) {
	c.cleanupDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
