// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthMetrics は認証まわりのメトリクス収集インターフェース。
// ハンドラー層から利用する。
type AuthMetrics interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordRegisterSuccess()
	RecordRegisterFailure(reason string)
	RecordSessionIssued()
	RecordHTTPStatus(statusCode int)
	RecordLoginLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess    prometheus.Counter
	loginFail       *prometheus.CounterVec
	registerSuccess prometheus.Counter
	registerFail    *prometheus.CounterVec
	sessionsIssued  prometheus.Counter
	httpStatus      *prometheus.CounterVec
	loginLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_fail_total",
			Help: "失敗理由別のログイン失敗数",
		}, []string{"reason"}),
		registerSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_register_success_total",
			Help: "ユーザー登録成功の合計数",
		}),
		registerFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_register_fail_total",
			Help: "失敗理由別のユーザー登録失敗数",
		}, []string{"reason"}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_issued_total",
			Help: "発行されたセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		loginLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_login_latency_seconds",
			Help:    "ログイン処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.registerSuccess,
		c.registerFail,
		c.sessionsIssued,
		c.httpStatus,
		c.loginLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を失敗理由とともに記録する。
// reasonにはエラーコード（NO_SUCH_USER等）を渡す。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

// RecordRegisterSuccess はユーザー登録成功を記録する。
func (c *Collector) RecordRegisterSuccess() {
	c.registerSuccess.Inc()
}

// RecordRegisterFailure はユーザー登録失敗を失敗理由とともに記録する。
func (c *Collector) RecordRegisterFailure(reason string) {
	c.registerFail.WithLabelValues(reason).Inc()
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued() {
	c.sessionsIssued.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLoginLatency はログイン処理のレイテンシを記録する。
// bcrypt照合を含むため、レイテンシの監視はコスト調整の指標になる。
func (c *Collector) RecordLoginLatency(duration time.Duration) {
	c.loginLatency.Observe(duration.Seconds())
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
