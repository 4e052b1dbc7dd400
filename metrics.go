package docvault

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as metric labels
const (
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"
	OpErase   = "erase"
	OpRekey   = "rekey"
)

// Outcome labels
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeSecurity  = "security"
	OutcomeMalformed = "malformed"
	OutcomeIO        = "io"
	OutcomeMissing   = "missing"
	OutcomeError     = "error"
)

// Metrics counts vault operations by outcome and times them
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates the vault metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docvault",
				Name:      "operations_total",
				Help:      "Document operations by type and outcome",
			},
			[]string{"op", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docvault",
				Name:      "operation_duration_seconds",
				Help:      "Time spent in document operations, including key derivation",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.Duration)
	}
	return m
}

// observe records one finished operation; nil receivers are ignored
func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcomeOf(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeOutcome(op string, start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsCancelled(err):
		return OutcomeCancelled
	case IsSecurityError(err):
		return OutcomeSecurity
	case IsCorruptionError(err):
		return OutcomeMalformed
	case IsIOError(err):
		return OutcomeIO
	default:
		return OutcomeError
	}
}
