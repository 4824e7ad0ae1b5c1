// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 持有促销服务的全部指标，注册到同一个 Registerer。
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	DiscountsEmitted   prometheus.Counter
	CatalogCache       *prometheus.CounterVec
	CatalogEvents      *prometheus.CounterVec
}

// New 创建指标并注册到 reg。reg 为 nil 时只创建不注册，测试中使用。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upsell",
			Name:      "evaluations_total",
			Help:      "Number of cart evaluations by outcome.",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "upsell",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a cart, catalog loading included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		DiscountsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "upsell",
			Name:      "discounts_emitted_total",
			Help:      "Number of discount instructions returned to callers.",
		}),
		CatalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upsell",
			Name:      "catalog_cache_requests_total",
			Help:      "Catalog cache lookups by result.",
		}, []string{"result"}),
		CatalogEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upsell",
			Name:      "catalog_events_total",
			Help:      "Catalog change events by direction and result.",
		}, []string{"direction", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Evaluations, m.EvaluationDuration, m.DiscountsEmitted, m.CatalogCache, m.CatalogEvents)
	}
	return m
}

// Outcome 标签值。
const (
	OutcomeDiscounted = "discounted"
	OutcomeEmpty      = "empty"
	OutcomeError      = "error"
)

// ObserveEvaluation 记录一次评估结果。
func (m *Metrics) ObserveEvaluation(outcome string, seconds float64, discounts int) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(seconds)
	m.DiscountsEmitted.Add(float64(discounts))
}

// CacheHit 记录一次缓存命中或未命中。
func (m *Metrics) CacheHit(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CatalogCache.WithLabelValues("hit").Inc()
		return
	}
	m.CatalogCache.WithLabelValues("miss").Inc()
}

// CatalogEvent 记录一次目录变更事件的发送或消费。
func (m *Metrics) CatalogEvent(direction string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CatalogEvents.WithLabelValues(direction, result).Inc()
}
