// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// リフレッシュ結果のラベル値
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアント、クエリキャッシュ、リレーから利用する。
type MetricsCollector interface {
	RecordAPIRequest(endpoint string, statusCode int, duration time.Duration)
	RecordTokenRefresh(outcome string)
	RecordCacheHit(resource string)
	RecordCacheMiss(resource string)
	RecordCacheCoalesced(resource string)
	RecordCacheEvicted(count int)
	RecordRelayRequest(statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	tokenRefreshes *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheCoalesced *prometheus.CounterVec
	cacheEvicted   prometheus.Counter
	relayRequests  *prometheus.CounterVec
	relayLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citadel_api_requests_total",
			Help: "エンドポイント・ステータスコード別のAPIリクエスト数",
		}, []string{"endpoint", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citadel_api_request_duration_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citadel_token_refresh_total",
			Help: "結果別のトークン更新回数",
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citadel_query_cache_hits_total",
			Help: "リソース別のキャッシュヒット数",
		}, []string{"resource"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citadel_query_cache_misses_total",
			Help: "リソース別のキャッシュミス数",
		}, []string{"resource"}),
		cacheCoalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citadel_query_cache_coalesced_total",
			Help: "進行中のリクエストに合流した読み取り数",
		}, []string{"resource"}),
		cacheEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "citadel_query_cache_evicted_total",
			Help: "GC期間経過により破棄されたキャッシュエントリ数",
		}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citadel_relay_requests_total",
			Help: "ステータスコード別のリレー転送数",
		}, []string{"status_code"}),
		relayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "citadel_relay_request_duration_seconds",
			Help:    "リレー転送のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.tokenRefreshes,
		c.cacheHits,
		c.cacheMisses,
		c.cacheCoalesced,
		c.cacheEvicted,
		c.relayRequests,
		c.relayLatency,
	)

	return c
}

// statusLabel はステータスコードをラベル値に変換する。
// 応答を受け取れなかった場合（0）は"network_error"とする。
func statusLabel(statusCode int) string {
	if statusCode == 0 {
		return "network_error"
	}
	return strconv.Itoa(statusCode)
}

// RecordAPIRequest はAPIリクエストの結果とレイテンシを記録する。
func (c *Collector) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(endpoint, statusLabel(statusCode)).Inc()
	c.apiLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordTokenRefresh はトークン更新の結果を記録する。
func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(resource string) {
	c.cacheHits.WithLabelValues(resource).Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(resource string) {
	c.cacheMisses.WithLabelValues(resource).Inc()
}

// RecordCacheCoalesced は進行中リクエストへの合流を記録する。
func (c *Collector) RecordCacheCoalesced(resource string) {
	c.cacheCoalesced.WithLabelValues(resource).Inc()
}

// RecordCacheEvicted は破棄されたエントリ数を記録する。
func (c *Collector) RecordCacheEvicted(count int) {
	c.cacheEvicted.Add(float64(count))
}

// RecordRelayRequest はリレー転送の結果とレイテンシを記録する。
func (c *Collector) RecordRelayRequest(statusCode int, duration time.Duration) {
	c.relayRequests.WithLabelValues(statusLabel(statusCode)).Inc()
	c.relayLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。
// メトリクスを公開しないCLIコマンドで使う。
type Nop struct{}

func (Nop) RecordAPIRequest(string, int, time.Duration) {}
func (Nop) RecordTokenRefresh(string)                   {}
func (Nop) RecordCacheHit(string)                       {}
func (Nop) RecordCacheMiss(string)                      {}
func (Nop) RecordCacheCoalesced(string)                 {}
func (Nop) RecordCacheEvicted(int)                      {}
func (Nop) RecordRelayRequest(int, time.Duration)       {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
