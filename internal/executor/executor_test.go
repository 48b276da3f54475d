package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-settlement/internal/metrics"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/trade"
)

type failingQuoter struct {
	err   error
	calls int
}

func (f *failingQuoter) Quote(ctx context.Context, pair trade.Pair) (trade.Quote, error) {
	f.calls++
	return trade.Quote{}, f.err
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []trade.Record
	err  error
}

func (p *recordingPublisher) PublishTradeExecuted(ctx context.Context, rec trade.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func request(base, quote, amount string) trade.Request {
	return trade.Request{Base: base, Quote: quote, Amount: decimal.RequireFromString(amount)}
}

func TestExecuteConvertsAtQuotedRate(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	exec := New(quote.NewFixed(decimal.RequireFromString("0.92")), Options{
		Publisher: pub,
		Clock:     func() time.Time { return now },
	}, zerolog.Nop())

	rec, err := exec.Execute(context.Background(), request("usd", "eur", "100"))
	require.NoError(t, err)

	assert.Equal(t, "USD", rec.Base)
	assert.Equal(t, "EUR", rec.Quote)
	assert.Equal(t, "92.00", rec.ConvertedAmount.StringFixed(2))
	assert.True(t, rec.Rate.Equal(decimal.RequireFromString("0.92")))
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, trade.ProvenanceExecutor, rec.Provenance)

	_, err = uuid.Parse(rec.ID)
	assert.NoError(t, err, "trade id should be a uuid")
	require.Len(t, pub.recs, 1)
	assert.Equal(t, rec.ID, pub.recs[0].ID)
}

func TestExecuteInvalidRequestNeverQuotes(t *testing.T) {
	q := &failingQuoter{err: errors.New("must not be called")}
	exec := New(q, Options{}, zerolog.Nop())

	cases := []struct {
		name  string
		req   trade.Request
		field string
	}{
		{"zero amount", request("USD", "EUR", "0"), "amount"},
		{"negative amount", request("USD", "EUR", "-5"), "amount"},
		{"missing base", request("", "EUR", "10"), "fromCurrency"},
		{"missing quote", request("USD", " ", "10"), "toCurrency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), tc.req)
			require.ErrorIs(t, err, trade.ErrInvalidRequest)
			field, ok := trade.FieldOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.field, field)
		})
	}
	assert.Zero(t, q.calls)
}

func TestExecuteRateUnavailable(t *testing.T) {
	exec := New(&failingQuoter{err: trade.RateUnavailable("no EUR")}, Options{}, zerolog.Nop())
	_, err := exec.Execute(context.Background(), request("USD", "EUR", "100"))
	assert.ErrorIs(t, err, trade.ErrRateUnavailable)
	assert.NotErrorIs(t, err, trade.ErrInvalidRequest)
}

func TestExecuteUnclassifiedQuoteErrorIsRateUnavailable(t *testing.T) {
	exec := New(&failingQuoter{err: context.DeadlineExceeded}, Options{}, zerolog.Nop())
	_, err := exec.Execute(context.Background(), request("USD", "EUR", "100"))
	assert.ErrorIs(t, err, trade.ErrRateUnavailable)
}

func TestExecuteIDFailure(t *testing.T) {
	exec := New(quote.NewFixed(decimal.NewFromInt(1)), Options{
		NewID: func() (string, error) { return "", errors.New("entropy exhausted") },
	}, zerolog.Nop())
	_, err := exec.Execute(context.Background(), request("USD", "USD", "1"))
	assert.ErrorIs(t, err, trade.ErrExecutionFailed)
}

func TestExecutePublishFailureDoesNotFailTrade(t *testing.T) {
	exec := New(quote.NewFixed(decimal.NewFromInt(2)), Options{
		Publisher: &recordingPublisher{err: errors.New("broker down")},
	}, zerolog.Nop())
	rec, err := exec.Execute(context.Background(), request("USD", "GBP", "1.005"))
	require.NoError(t, err)
	assert.Equal(t, "2.01", rec.ConvertedAmount.StringFixed(2))
}

func TestExecuteConcurrentIDsAreUnique(t *testing.T) {
	exec := New(quote.NewFixed(decimal.RequireFromString("1.1")), Options{}, zerolog.Nop())

	const n = 1000
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := exec.Execute(context.Background(), request("USD", "EUR", "10"))
			if err == nil {
				ids[i] = rec.ID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		require.NotEmpty(t, id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestExecuteRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	exec := New(quote.NewFixed(decimal.NewFromInt(1)), Options{Metrics: m}, zerolog.Nop())

	_, _ = exec.Execute(context.Background(), request("USD", "EUR", "5"))
	_, _ = exec.Execute(context.Background(), request("USD", "EUR", "0"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(metrics.OutcomeSuccess, "executor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(metrics.OutcomeInvalidRequest, "executor")))
}
