package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat pipeline.
type ChatMetrics struct {
	turnsTotal     *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	rateLimited    prometheus.Counter
	llmLatency     *prometheus.HistogramVec
	toolLatency    *prometheus.HistogramVec
	tokensConsumed prometheus.Counter
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealhound",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns",
		}, []string{"intent", "outcome"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealhound",
			Subsystem: "chat",
			Name:      "cache_hits_total",
			Help:      "Cache hits by entry type",
		}, []string{"type"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dealhound",
			Subsystem: "chat",
			Name:      "rate_limited_total",
			Help:      "Turns rejected by the rate limiter",
		}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealhound",
			Subsystem: "chat",
			Name:      "llm_latency_seconds",
			Help:      "Latency of model completions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealhound",
			Subsystem: "chat",
			Name:      "tool_latency_seconds",
			Help:      "Latency of tool executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		tokensConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dealhound",
			Subsystem: "chat",
			Name:      "tokens_consumed_total",
			Help:      "Total model tokens consumed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.cacheHits, m.rateLimited, m.llmLatency, m.toolLatency, m.tokensConsumed)
	return m
}

func (m *ChatMetrics) ObserveTurn(intent, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *ChatMetrics) ObserveCacheHit(entryType string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(entryType).Inc()
}

func (m *ChatMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *ChatMetrics) ObserveLLMLatency(model string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(model).Observe(seconds)
}

func (m *ChatMetrics) ObserveToolLatency(tool string, seconds float64) {
	if m == nil {
		return
	}
	m.toolLatency.WithLabelValues(tool).Observe(seconds)
}

func (m *ChatMetrics) AddTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensConsumed.Add(float64(n))
}
