// 包 metrics 定义缓存命中、任务结果与耗时等 Prometheus 指标。
// *Metrics 为 nil 时所有记录方法为空操作，便于测试与未启用指标的场景。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peak_window"

// Metrics 汇总本服务的全部指标，由 New 在调用方提供的注册表上创建。
type Metrics struct {
	cacheLookups *prometheus.CounterVec
	jobs         *prometheus.CounterVec
	jobDuration  prometheus.Histogram
	inflight     prometheus.Gauge
	httpRequests *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// New 在给定注册表上注册指标；reg 为 nil 时创建独立注册表。
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Freshness cache lookups by result (hit|miss).",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished analysis jobs by outcome (ok or error kind).",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of single-subject analysis jobs.",
			Buckets:   prometheus.DefBuckets,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_inflight",
			Help:      "Analysis jobs currently running.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.cacheLookups, m.jobs, m.jobDuration, m.inflight, m.httpRequests)
	return m
}

// CacheLookup 按命中与否累加缓存查询次数。
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// JobStarted 记录任务开始，返回的函数在任务结束时以结果标签调用。
func (m *Metrics) JobStarted() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.inflight.Inc()
	return func(outcome string) {
		m.inflight.Dec()
		m.jobDuration.Observe(time.Since(start).Seconds())
		m.jobs.WithLabelValues(outcome).Inc()
	}
}

// HTTPRequest 按路由模板与状态码累加 HTTP 请求数。
func (m *Metrics) HTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
