// Package metrics holds the Prometheus collectors for training, selection
// and evaluation. Collectors live on a private registry so several engines
// can coexist in one process (and in tests).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	reg *prometheus.Registry

	// trainSteps counts optimizer steps by mode (fit, update).
	trainSteps *prometheus.CounterVec

	// trainLoss is the mean loss of the last completed epoch by mode.
	trainLoss *prometheus.GaugeVec

	// selections counts administered items by strategy.
	selections *prometheus.CounterVec

	// selectionDuration tracks how long one selection round takes.
	selectionDuration *prometheus.HistogramVec

	// eval holds the latest evaluation report.
	eval *prometheus.GaugeVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		trainSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adaptest_train_steps_total",
			Help: "Optimizer steps taken, by training mode",
		}, []string{"mode"}),
		trainLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adaptest_train_loss",
			Help: "Mean loss of the last completed epoch, by training mode",
		}, []string{"mode"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adaptest_selections_total",
			Help: "Items administered, by selection strategy",
		}, []string{"strategy"}),
		selectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adaptest_selection_duration_seconds",
			Help:    "Duration of one selection round over all students",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
		}, []string{"strategy"}),
		eval: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adaptest_eval",
			Help: "Latest evaluation result, by metric (acc, auc, cov)",
		}, []string{"metric"}),
	}
	m.reg.MustRegister(m.trainSteps, m.trainLoss, m.selections, m.selectionDuration, m.eval)
	return m
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// WriteTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

// The recording methods are no-ops on a nil receiver so callers can leave
// metrics unset.

func (m *Metrics) TrainSteps(mode string, n int) {
	if m == nil {
		return
	}
	m.trainSteps.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) TrainLoss(mode string, loss float64) {
	if m == nil {
		return
	}
	m.trainLoss.WithLabelValues(mode).Set(loss)
}

func (m *Metrics) Selections(strategy string, n int, d time.Duration) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(strategy).Add(float64(n))
	m.selectionDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (m *Metrics) Eval(acc, auc, cov float64) {
	if m == nil {
		return
	}
	m.eval.WithLabelValues("acc").Set(acc)
	m.eval.WithLabelValues("auc").Set(auc)
	m.eval.WithLabelValues("cov").Set(cov)
}
