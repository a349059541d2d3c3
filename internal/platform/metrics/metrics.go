package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus 不允许重复注册同名指标，否则直接 panic
	once sync.Once

	// HTTPRequestsTotal 累计请求数。route 用路由模板（/:code），不能用真实 path，否则 label 基数无限。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds 请求耗时分布，用来算 P95/P99
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// SqidsEncodeTotal result: ok | exhausted
	SqidsEncodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqids_encode_total",
			Help: "短码编码次数",
		},
		[]string{"result"},
	)

	// SqidsDecodeTotal result: ok | invalid
	SqidsDecodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqids_decode_total",
			Help: "短码解码次数",
		},
		[]string{"result"},
	)

	// SqidsBlocklistRetries 每次编码被屏蔽词打回的次数，大多数情况是 0
	SqidsBlocklistRetries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqids_blocklist_retries",
			Help:    "Candidate IDs rejected by the blocklist per encode.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	ShortlinkRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_redirect_total",
			Help: "短链跳转次数",
		},
	)

	// ClickEventsDropped 进程内缓冲满了被丢弃的点击事件
	ClickEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "click_events_dropped_total",
			Help: "Click events dropped because the in-process buffer was full.",
		},
	)

	// BloomApproxItems 布隆过滤器里的估算元素数
	BloomApproxItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortlink_bloom_approx_items",
			Help: "布隆过滤器估算元素数",
		},
	)

	// CacheOperations level: bloom | l1 | l2，result: hit | hit_negative | miss | reject
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "短链缓存命中情况",
		},
		[]string{"level", "result"},
	)
)

// Init 注册全部指标，多次调用只生效一次
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			SqidsEncodeTotal,
			SqidsDecodeTotal,
			SqidsBlocklistRetries,
			ShortlinkRedirects,
			CacheOperations,
			ClickEventsDropped,
			BloomApproxItems,
		)
	})
}
