// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 dispatch.Recorder 与 classifier.CacheRecorder
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 调度指标
	classificationsTotal   *prometheus.CounterVec
	classificationDuration *prometheus.HistogramVec
	selectionsTotal        *prometheus.CounterVec
	dispatchesTotal        *prometheus.CounterVec
	dispatchDuration       *prometheus.HistogramVec

	// 缓存指标
	cacheLookups *prometheus.CounterVec

	// 审计与数据库指标
	auditEntries      *prometheus.GaugeVec
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器；reg 为 nil 时注册到默认 Registerer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.classificationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Total number of per-dimension classifications",
		},
		[]string{"dimension", "label", "status"},
	)
	c.classificationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Classification duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"dimension"},
	)
	c.selectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_selections_total",
			Help:      "Total number of round-robin selections per worker",
		},
		[]string{"pool", "worker"},
	)
	c.dispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of dispatches by outcome",
		},
		[]string{"pool", "status"},
	)
	c.dispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "End-to-end dispatch duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"pool"},
	)

	c.cacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_cache_lookups_total",
			Help:      "Classification cache lookups by result",
		},
		[]string{"dimension", "result"},
	)

	c.auditEntries = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_entries",
			Help:      "Audit entries processed by the writer, by outcome",
		},
		[]string{"outcome"},
	)
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🧭 调度指标记录（dispatch.Recorder）
// =============================================================================

// RecordClassification 记录单个维度的分类结果
func (c *Collector) RecordClassification(dimension, label, status string, d time.Duration) {
	c.classificationsTotal.WithLabelValues(dimension, orNone(label), status).Inc()
	c.classificationDuration.WithLabelValues(dimension).Observe(d.Seconds())
}

// RecordSelection 记录一次轮询选择
func (c *Collector) RecordSelection(pool, worker string) {
	c.selectionsTotal.WithLabelValues(pool, worker).Inc()
}

// RecordDispatch 记录一次调度的最终结果；未解析出池时 pool 记为 none
func (c *Collector) RecordDispatch(pool, status string, d time.Duration) {
	pool = orNone(pool)
	c.dispatchesTotal.WithLabelValues(pool, status).Inc()
	c.dispatchDuration.WithLabelValues(pool).Observe(d.Seconds())
}

// =============================================================================
// 💾 缓存指标记录（classifier.CacheRecorder）
// =============================================================================

// RecordCacheLookup 记录分类缓存查询
func (c *Collector) RecordCacheLookup(dimension string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(dimension, result).Inc()
}

// =============================================================================
// 🗄️ 审计与数据库
// =============================================================================

// RecordAuditStats 记录审计写入器的累计统计
func (c *Collector) RecordAuditStats(written, dropped, failed uint64) {
	c.auditEntries.WithLabelValues("written").Set(float64(written))
	c.auditEntries.WithLabelValues("dropped").Set(float64(dropped))
	c.auditEntries.WithLabelValues("failed").Set(float64(failed))
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
