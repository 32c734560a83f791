package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/crypto_trade_gate/internal/domain"
)

// Recorder exposes decision and risk outcomes as Prometheus metrics. It
// implements domain.CycleObserver.
type Recorder struct {
	registry *prometheus.Registry

	signalsTotal     *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	riskOutcomes     *prometheus.CounterVec
	triggeredRules   *prometheus.CounterVec
	decisionNotional *prometheus.HistogramVec
	cycleDuration    prometheus.Histogram
	cycleDecisions   prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		signalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_gate_signals_total",
				Help: "Signals received, by market and whether they passed the confidence floor",
			},
			[]string{"market", "accepted"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_gate_decisions_total",
				Help: "Sized decisions, by market, direction and final status",
			},
			[]string{"market", "direction", "status"},
		),
		riskOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_gate_risk_decisions_total",
				Help: "Risk engine outcomes",
			},
			[]string{"risk_decision"},
		),
		triggeredRules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_gate_triggered_rules_total",
				Help: "Triggered risk rules, by rule and severity",
			},
			[]string{"rule", "severity"},
		),
		decisionNotional: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trade_gate_decision_notional",
				Help:    "Notional of gated decisions",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
			[]string{"market"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trade_gate_cycle_duration_seconds",
			Help:    "Duration of decision cycles",
			Buckets: prometheus.DefBuckets,
		}),
		cycleDecisions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trade_gate_cycle_decisions",
			Help: "Decisions produced by the last cycle",
		}),
	}

	r.registry.MustRegister(
		r.signalsTotal,
		r.decisionsTotal,
		r.riskOutcomes,
		r.triggeredRules,
		r.decisionNotional,
		r.cycleDuration,
		r.cycleDecisions,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveSignal(signal domain.Signal, accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	r.signalsTotal.WithLabelValues(signal.Market, label).Inc()
}

func (r *Recorder) ObserveDecision(decision *domain.Decision, record *domain.RiskRecord) {
	r.decisionsTotal.WithLabelValues(decision.Market, string(decision.Direction), string(decision.Status)).Inc()
	r.decisionNotional.WithLabelValues(decision.Market).Observe(decision.Notional().InexactFloat64())
	r.riskOutcomes.WithLabelValues(string(record.RiskDecision)).Inc()
	for _, t := range record.TriggeredRules {
		r.triggeredRules.WithLabelValues(t.RuleName, string(t.Severity)).Inc()
	}
}

func (r *Recorder) ObserveCycle(decisions int, seconds float64) {
	r.cycleDuration.Observe(seconds)
	r.cycleDecisions.Set(float64(decisions))
}
