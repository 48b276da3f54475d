// Package executor validates conversion requests, re-quotes them and mints
// trade records.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-settlement/internal/events"
	"trade-settlement/internal/metrics"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/trade"
)

// IDFunc mints a trade id.
type IDFunc func() (string, error)

// Options tune executor behaviour. Zero values fall back to defaults.
type Options struct {
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Clock     func() time.Time
	NewID     IDFunc
}

// Executor is stateless between calls and safe for concurrent use.
type Executor struct {
	quoter    quote.Quoter
	publisher events.Publisher
	metrics   *metrics.Metrics
	clock     func() time.Time
	newID     IDFunc
	logger    zerolog.Logger
}

// New constructs an Executor quoting through q.
func New(q quote.Quoter, opts Options, logger zerolog.Logger) *Executor {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = randomID
	}
	return &Executor{
		quoter:    q,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		newID:     opts.NewID,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// Execute validates req, fetches a fresh rate and mints a record.
func (e *Executor) Execute(ctx context.Context, req trade.Request) (trade.Record, error) {
	rec, err := e.execute(ctx, req)
	e.metrics.RecordExecution(err, trade.ProvenanceExecutor)
	return rec, err
}

func (e *Executor) execute(ctx context.Context, req trade.Request) (trade.Record, error) {
	if err := req.Validate(); err != nil {
		return trade.Record{}, err
	}
	req = req.Normalise()

	q, err := e.quoter.Quote(ctx, req.Pair())
	if err != nil {
		if !errors.Is(err, trade.ErrRateUnavailable) && !errors.Is(err, trade.ErrInvalidRequest) {
			err = trade.RateUnavailable("%v", err)
		}
		e.logger.Warn().Err(err).Str("pair", req.Pair().String()).Msg("quote failed")
		return trade.Record{}, err
	}

	id, err := e.newID()
	if err != nil || id == "" {
		if err == nil {
			err = errors.New("empty trade id")
		}
		e.logger.Error().Err(err).Msg("trade id minting failed")
		return trade.Record{}, trade.ExecutionFailed(err)
	}

	rec := trade.NewRecord(id, req, q, e.clock(), trade.ProvenanceExecutor)

	if err := e.publisher.PublishTradeExecuted(ctx, rec); err != nil {
		e.logger.Error().Err(err).Str("trade_id", rec.ID).Msg("failed to publish trade event")
	}

	e.logger.Info().
		Str("trade_id", rec.ID).
		Str("pair", req.Pair().String()).
		Str("amount", rec.OriginalAmount.String()).
		Str("rate", rec.Rate.String()).
		Str("converted", rec.ConvertedAmount.StringFixed(trade.AmountPlaces)).
		Msg("trade executed")
	return rec, nil
}

func randomID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
