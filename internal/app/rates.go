package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"trade-settlement/internal/board"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/scheduler"
	"trade-settlement/internal/trade"
)

// Quote prints the current rate for one pair.
func (a *App) Quote(ctx context.Context, opts QuoteOptions) error {
	return printQuote(ctx, a.newQuoter(nil), trade.NewPair(opts.From, opts.To), os.Stdout)
}

func printQuote(ctx context.Context, q quote.Quoter, pair trade.Pair, out io.Writer) error {
	got, err := q.Quote(ctx, pair)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pair\tRate\tSource\tFetched (UTC)")
	fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", got.Pair, got.Rate.String(), got.Source, got.FetchedAt.Format(time.RFC3339))
	return writer.Flush()
}

// Rates prints the rate board once, or repeatedly with Watch, and exports
// the collected history when a CSV or PNG path is given.
func (a *App) Rates(ctx context.Context, opts RatesOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.rates(ctx, a.newRateSource(), opts, os.Stdout)
}

func (a *App) rates(ctx context.Context, source quote.BoardSource, opts RatesOptions, out io.Writer) error {
	base := opts.Base
	if base == "" {
		base = a.Config.Board.Base
	}
	symbols := opts.Symbols
	if len(symbols) == 0 {
		symbols = a.Config.Board.Symbols
	}
	maxPoints := a.Config.ResolveMaxPoints(opts.MaxPoints)

	b, err := board.New(source, board.Options{Base: base, Symbols: symbols, HistoryLimit: maxPoints}, a.Logger)
	if err != nil {
		return err
	}

	if !opts.Watch {
		s, err := b.Sample(ctx, time.Time{})
		if rerr := b.Render(out, s); rerr != nil {
			return rerr
		}
		if err != nil {
			return err
		}
		return a.exportBoard(b, opts, maxPoints)
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Board.Interval,
		AlignToStart: a.Config.Board.AlignToBucket,
		Immediate:    true,
		MaxTicks:     opts.Count,
	}, a.Logger)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("base", b.Base()).Strs("symbols", b.Symbols()).Dur("interval", a.Config.Board.Interval).Msg("watching rate board")
	err = sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		s, err := b.Sample(ctx, bucket)
		if rerr := b.Render(out, s); rerr != nil {
			return rerr
		}
		fmt.Fprintln(out)
		return err
	})
	if err != nil && !errors.Is(err, scheduler.ErrDone) && !errors.Is(err, context.Canceled) {
		return err
	}
	return a.exportBoard(b, opts, maxPoints)
}

func (a *App) exportBoard(b *board.Board, opts RatesOptions, maxPoints int) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return nil
	}
	samples := board.Downsample(b.History(), maxPoints)

	if opts.CSVPath != "" {
		if err := board.WriteCSV(opts.CSVPath, b.Base(), samples); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("rows", len(samples)).Msg("exported CSV")
	}
	if opts.PNGPath != "" {
		if err := board.WritePNG(opts.PNGPath, b.Base(), samples); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Int("points", len(samples)).Msg("exported PNG chart")
	}
	return nil
}
