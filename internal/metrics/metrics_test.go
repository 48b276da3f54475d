package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-settlement/internal/quote"
	"trade-settlement/internal/trade"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeInvalidRequest, Outcome(&trade.ValidationError{Field: "amount", Reason: "x"}))
	assert.Equal(t, OutcomeRateUnavailable, Outcome(trade.RateUnavailable("down")))
	assert.Equal(t, OutcomeExecutionFailed, Outcome(trade.ExecutionFailed(errors.New("boom"))))
	assert.Equal(t, OutcomeError, Outcome(errors.New("other")))
}

func TestRecordExecutionAndTransition(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordExecution(nil, trade.ProvenanceExecutor)
	m.RecordExecution(nil, trade.ProvenanceExecutor)
	m.RecordExecution(trade.RateUnavailable("down"), trade.ProvenanceExecutor)
	m.RecordTransition("accepted", "paid")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Executions.WithLabelValues(OutcomeSuccess, "executor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(OutcomeRateUnavailable, "executor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("accepted", "paid")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordExecution(nil, trade.ProvenanceExecutor)
	m.RecordTransition("a", "b")
	m.ObserveQuote(nil, 0)
}

func TestInstrumentQuoter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	q := InstrumentQuoter(quote.NewFixed(decimal.RequireFromString("0.92")), m)

	_, err := q.Quote(context.Background(), trade.NewPair("USD", "EUR"))
	require.NoError(t, err)
	_, err = q.Quote(context.Background(), trade.NewPair("", "EUR"))
	require.Error(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.QuoteLatency))
}
