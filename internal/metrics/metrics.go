// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"
)

// MetricsCollector はメトリクス収集のインターフェース。
// コントローラー、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordNoteOperation(operation, outcome string)
	RecordAuthAttempt(kind, outcome string)
	RecordBackendCall(operation string, duration time.Duration, err error)
	RecordHTTPStatus(statusCode int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	noteOps         *prometheus.CounterVec
	authAttempts    *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		noteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notesapp_note_operations_total",
			Help: "メモ操作（fetch/add/delete）の結果別合計数",
		}, []string{"operation", "outcome"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notesapp_auth_attempts_total",
			Help: "ログイン・登録の試行結果別合計数",
		}, []string{"kind", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notesapp_backend_request_duration_seconds",
			Help:    "Auth/Dataサービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notesapp_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notesapp_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.noteOps,
		c.authAttempts,
		c.backendLatency,
		c.httpStatus,
		c.sessionsCleaned,
	)

	return c
}

// RecordNoteOperation はメモ操作の結果を記録する。
func (c *Collector) RecordNoteOperation(operation, outcome string) {
	c.noteOps.WithLabelValues(operation, outcome).Inc()
}

// RecordAuthAttempt はログイン・登録の結果を記録する。
func (c *Collector) RecordAuthAttempt(kind, outcome string) {
	c.authAttempts.WithLabelValues(kind, outcome).Inc()
}

// RecordBackendCall はサービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordBackendCall(operation string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.backendLatency.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsCleaned は削除したセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordNoteOperation(string, string)             {}
func (NopCollector) RecordAuthAttempt(string, string)               {}
func (NopCollector) RecordBackendCall(string, time.Duration, error) {}
func (NopCollector) RecordHTTPStatus(int)                           {}
func (NopCollector) RecordSessionsCleaned(int64)                    {}

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

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
