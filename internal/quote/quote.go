// Package quote retrieves exchange rates from an external rate source.
package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trade-settlement/internal/trade"
)

// Quoter retrieves the current rate for a currency pair.
type Quoter interface {
	Quote(ctx context.Context, pair trade.Pair) (trade.Quote, error)
}

// BoardSource retrieves several rates against one base in a single call.
type BoardSource interface {
	Rates(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, time.Time, error)
}

// Clock returns the current time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
