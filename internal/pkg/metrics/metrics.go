package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// ホールド取得の試行数（outcome: accepted, conflict, error）
	HoldAttemptsTotal *prometheus.CounterVec

	// 確定処理の結果数（outcome: booked, conflict, expired, persistence_failed）
	FinalizeTotal *prometheus.CounterVec

	// 現在保持中のホールド数
	ActiveHolds prometheus.Gauge

	// 掃除1サイクルの所要時間
	SweepDuration prometheus.Histogram

	// 掃除で回収した期限切れホールドの総数
	SweptHoldsTotal prometheus.Counter

	// 配信したイベントの総数（type: held, released, booked）
	BroadcastEventsTotal *prometheus.CounterVec

	// バッファ溢れで捨てたイベントの総数
	BroadcastDroppedTotal prometheus.Counter
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HoldAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hold_attempts_total",
				Help: "Total number of table hold attempts",
			},
			[]string{"outcome"},
		),
		FinalizeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalize_total",
				Help: "Total number of booking finalize attempts",
			},
			[]string{"outcome"},
		),
		ActiveHolds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_holds",
				Help: "Current number of active table holds",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hold_sweep_duration_seconds",
				Help:    "Time spent per expiry sweep cycle",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		SweptHoldsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swept_holds_total",
				Help: "Total number of expired holds evicted by the sweeper",
			},
		),
		BroadcastEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_events_total",
				Help: "Total number of broadcast events published",
			},
			[]string{"type"},
		),
		BroadcastDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_dropped_total",
				Help: "Total number of broadcast events dropped on subscriber overflow",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HoldAttemptsTotal,
		m.FinalizeTotal,
		m.ActiveHolds,
		m.SweepDuration,
		m.SweptHoldsTotal,
		m.BroadcastEventsTotal,
		m.BroadcastDroppedTotal,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
