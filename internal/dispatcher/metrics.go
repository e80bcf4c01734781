package dispatcher

import (
	"github.com/fghsg9075-lab/aios/internal/store/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatcher's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Attempts   *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
	Tokens     *prometheus.CounterVec
	Dispatches *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aios_provider_attempts_total",
				Help: "Total number of provider attempts",
			},
			[]string{"provider", "outcome"}, // outcome: success|failure|skipped
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aios_provider_latency_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aios_provider_tokens_total",
				Help: "Total tokens reported by providers",
			},
			[]string{"provider", "type"}, // type: input|output
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aios_dispatches_total",
				Help: "Total number of dispatched tasks",
			},
			[]string{"status"}, // status: success|error
		),
	}
	reg.MustRegister(m.Attempts, m.Latency, m.Tokens, m.Dispatches)
	return m
}

func (m *Metrics) attempt(a *model.Attempt) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(a.ProviderID, a.Outcome).Inc()
	if a.Outcome == model.OutcomeSkipped {
		return
	}
	m.Latency.WithLabelValues(a.ProviderID).Observe(float64(a.LatencyMs) / 1000)
	if a.Outcome == model.OutcomeSuccess {
		m.Tokens.WithLabelValues(a.ProviderID, "input").Add(float64(a.InputTokens))
		m.Tokens.WithLabelValues(a.ProviderID, "output").Add(float64(a.OutputTokens))
	}
}

func (m *Metrics) dispatched(ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.Dispatches.WithLabelValues(status).Inc()
}
