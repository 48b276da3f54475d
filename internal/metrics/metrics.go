// Package metrics exposes Prometheus instruments for quoting, execution and
// workflow transitions.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"trade-settlement/internal/quote"
	"trade-settlement/internal/trade"
)

// Outcome labels.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeRateUnavailable = "rate_unavailable"
	OutcomeExecutionFailed = "execution_failed"
	OutcomeError           = "error"
)

// Metrics groups the instruments. A nil *Metrics records nothing.
type Metrics struct {
	Executions   *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	QuoteLatency *prometheus.HistogramVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradesettle",
				Name:      "executions_total",
				Help:      "Trade executions by outcome.",
			},
			[]string{"outcome", "provenance"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradesettle",
				Name:      "workflow_transitions_total",
				Help:      "Workflow state transitions.",
			},
			[]string{"from", "to"},
		),
		QuoteLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tradesettle",
				Name:      "quote_duration_seconds",
				Help:      "Rate source latency in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"outcome"},
		),
	}
}

// Outcome classifies err into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, trade.ErrInvalidRequest):
		return OutcomeInvalidRequest
	case errors.Is(err, trade.ErrRateUnavailable):
		return OutcomeRateUnavailable
	case errors.Is(err, trade.ErrExecutionFailed):
		return OutcomeExecutionFailed
	default:
		return OutcomeError
	}
}

// RecordExecution counts one executor outcome.
func (m *Metrics) RecordExecution(err error, prov trade.Provenance) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(Outcome(err), string(prov)).Inc()
}

// RecordTransition counts one state change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// ObserveQuote records a rate source call.
func (m *Metrics) ObserveQuote(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QuoteLatency.WithLabelValues(Outcome(err)).Observe(elapsed.Seconds())
}

// InstrumentQuoter wraps q so every call is timed.
func InstrumentQuoter(q quote.Quoter, m *Metrics) quote.Quoter {
	if m == nil {
		return q
	}
	return &instrumentedQuoter{next: q, metrics: m}
}

type instrumentedQuoter struct {
	next    quote.Quoter
	metrics *Metrics
}

func (i *instrumentedQuoter) Quote(ctx context.Context, pair trade.Pair) (trade.Quote, error) {
	start := time.Now()
	q, err := i.next.Quote(ctx, pair)
	i.metrics.ObserveQuote(err, time.Since(start))
	return q, err
}

var _ quote.Quoter = (*instrumentedQuoter)(nil)
