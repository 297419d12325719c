package metrics

import "github.com/prometheus/client_golang/prometheus"

// QualificationMetrics exposes counters/histograms for the qualification flow.
type QualificationMetrics struct {
	updatesTotal      *prometheus.CounterVec
	scoreHistogram    *prometheus.HistogramVec
	readyTotal        *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec
	chatErrorsTotal   *prometheus.CounterVec
	fallbackTotal     prometheus.Counter
	chatLatency       prometheus.Histogram
}

func NewQualificationMetrics(reg prometheus.Registerer) *QualificationMetrics {
	m := &QualificationMetrics{
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesfusion",
			Subsystem: "qualification",
			Name:      "updates_total",
			Help:      "Total qualification recompute cycles",
		}, []string{"schema", "changed"}),
		scoreHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salesfusion",
			Subsystem: "qualification",
			Name:      "score",
			Help:      "Qualification score after each update",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"schema"}),
		readyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesfusion",
			Subsystem: "qualification",
			Name:      "ready_transitions_total",
			Help:      "Conversations crossing the ready-to-connect threshold",
		}, []string{"schema", "direction"}),
		notificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesfusion",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notification attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		chatErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesfusion",
			Subsystem: "chat",
			Name:      "backend_errors_total",
			Help:      "Chat backend failures by kind",
		}, []string{"kind"}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salesfusion",
			Subsystem: "chat",
			Name:      "fallback_responses_total",
			Help:      "Canned responses served because the chat backend failed",
		}),
		chatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salesfusion",
			Subsystem: "chat",
			Name:      "backend_latency_seconds",
			Help:      "Latency of chat backend calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.updatesTotal, m.scoreHistogram, m.readyTotal, m.notificationTotal,
		m.chatErrorsTotal, m.fallbackTotal, m.chatLatency)
	return m
}

func (m *QualificationMetrics) ObserveUpdate(schema string, score int, changed bool) {
	if m == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	m.updatesTotal.WithLabelValues(schema, label).Inc()
	m.scoreHistogram.WithLabelValues(schema).Observe(float64(score))
}

func (m *QualificationMetrics) ObserveReadyTransition(schema string, ready bool) {
	if m == nil {
		return
	}
	direction := "lost"
	if ready {
		direction = "gained"
	}
	m.readyTotal.WithLabelValues(schema, direction).Inc()
}

func (m *QualificationMetrics) ObserveNotification(channel, outcome string) {
	if m == nil {
		return
	}
	m.notificationTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *QualificationMetrics) ObserveChatError(kind string) {
	if m == nil {
		return
	}
	m.chatErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *QualificationMetrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbackTotal.Inc()
}

func (m *QualificationMetrics) ObserveChatLatency(seconds float64) {
	if m == nil {
		return
	}
	m.chatLatency.Observe(seconds)
}
