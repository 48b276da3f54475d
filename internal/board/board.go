// Package board samples one base currency against several symbols and keeps
// an in-memory history for display and export.
package board

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-settlement/internal/quote"
)

// Sample is one observation of the board.
type Sample struct {
	At    time.Time
	Rates map[string]decimal.Decimal
	Err   string
}

// Board samples rates from a BoardSource.
type Board struct {
	source  quote.BoardSource
	base    string
	symbols []string
	limit   int
	logger  zerolog.Logger

	mu      sync.Mutex
	history []Sample
}

// Options configure a Board.
type Options struct {
	Base    string
	Symbols []string
	// HistoryLimit caps retained samples; zero keeps everything.
	HistoryLimit int
}

// New constructs a Board.
func New(source quote.BoardSource, opts Options, logger zerolog.Logger) (*Board, error) {
	base := strings.ToUpper(strings.TrimSpace(opts.Base))
	if base == "" {
		return nil, fmt.Errorf("board base currency is required")
	}
	symbols := make([]string, 0, len(opts.Symbols))
	for _, s := range opts.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("board needs at least one symbol")
	}
	return &Board{
		source:  source,
		base:    base,
		symbols: symbols,
		limit:   opts.HistoryLimit,
		logger:  logger.With().Str("component", "rate_board").Logger(),
	}, nil
}

// Base returns the board's base currency.
func (b *Board) Base() string { return b.base }

// Symbols returns the quoted currencies in display order.
func (b *Board) Symbols() []string { return append([]string(nil), b.symbols...) }

// Sample fetches the current rates and appends them to the history. A failed
// fetch is recorded with its error and returned.
func (b *Board) Sample(ctx context.Context, at time.Time) (Sample, error) {
	rates, fetchedAt, err := b.source.Rates(ctx, b.base, b.symbols)
	s := Sample{At: at.UTC(), Rates: rates}
	if err != nil {
		s.Err = err.Error()
	} else if at.IsZero() {
		s.At = fetchedAt.UTC()
	}

	b.mu.Lock()
	b.history = append(b.history, s)
	if b.limit > 0 && len(b.history) > b.limit {
		b.history = b.history[len(b.history)-b.limit:]
	}
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn().Err(err).Msg("board sample failed")
		return s, err
	}
	b.logger.Debug().Time("at", s.At).Int("rates", len(rates)).Msg("board sampled")
	return s, nil
}

// History returns a copy of the retained samples.
func (b *Board) History() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sample(nil), b.history...)
}

// Render writes s as a table, one row per symbol.
func (b *Board) Render(w io.Writer, s Sample) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Time (UTC)\t%s\n", s.At.Format(time.RFC3339))
	fmt.Fprintln(writer, "Pair\tRate")
	for _, sym := range b.symbols {
		rate, ok := s.Rates[sym]
		value := "n/a"
		if ok {
			value = rate.String()
		}
		fmt.Fprintf(writer, "%s/%s\t%s\n", b.base, sym, value)
	}
	if s.Err != "" {
		fmt.Fprintf(writer, "error\t%s\n", sanitizeInline(s.Err))
	}
	return writer.Flush()
}

// Downsample keeps at most max evenly spaced samples, always including both ends.
func Downsample(samples []Sample, max int) []Sample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]Sample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

// symbolsOf returns every symbol seen in samples, sorted.
func symbolsOf(samples []Sample) []string {
	seen := make(map[string]struct{})
	for _, s := range samples {
		for sym := range s.Rates {
			seen[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	return strings.ReplaceAll(cleaned, "\r", " ")
}
