package quote

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"trade-settlement/internal/trade"
)

// Fixed answers every pair with the same rate. Used for offline simulation.
type Fixed struct {
	Rate  decimal.Decimal
	Clock Clock

	calls atomic.Int64
}

// NewFixed returns a quoter pinned to rate.
func NewFixed(rate decimal.Decimal) *Fixed {
	return &Fixed{Rate: rate}
}

// Quote returns the pinned rate stamped with the current time.
func (f *Fixed) Quote(ctx context.Context, pair trade.Pair) (trade.Quote, error) {
	f.calls.Add(1)
	pair = trade.NewPair(pair.Base, pair.Quote)
	if err := pair.Validate(); err != nil {
		return trade.Quote{}, err
	}
	if !f.Rate.IsPositive() {
		return trade.Quote{}, trade.RateUnavailable("fixed rate %s is not positive", f.Rate)
	}
	return trade.Quote{Pair: pair, Rate: f.Rate, FetchedAt: f.Clock.now(), Source: "fixed"}, nil
}

// Rates returns the pinned rate for every symbol.
func (f *Fixed) Rates(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, time.Time, error) {
	f.calls.Add(1)
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range upperAll(symbols) {
		out[s] = f.Rate
	}
	return out, f.Clock.now(), nil
}

// Calls reports how many times the quoter was consulted.
func (f *Fixed) Calls() int64 {
	return f.calls.Load()
}

var (
	_ Quoter      = (*Fixed)(nil)
	_ BoardSource = (*Fixed)(nil)
)
