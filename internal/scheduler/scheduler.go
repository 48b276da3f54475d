// Package scheduler runs a tick function on a fixed, optionally aligned, cadence.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrDone is returned by Run after MaxTicks ticks.
var ErrDone = errors.New("scheduler finished")

// TickFunc is invoked on every interval with the bucket it belongs to.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Immediate fires one tick before waiting for the first interval.
	Immediate bool
	// MaxTicks stops the loop after that many ticks; zero runs until cancelled.
	MaxTicks int
}

// Scheduler drives periodic sampling.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler; the interval must be positive.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	if opts.MaxTicks < 0 {
		return nil, errors.New("scheduler max ticks cannot be negative")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}, nil
}

// Run blocks, invoking tick at each interval until ctx is cancelled or
// MaxTicks is reached. Tick errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticks := 0
	fire := func(bucket time.Time) bool {
		s.logger.Debug().Time("bucket", bucket).Msg("executing scheduled tick")
		if err := tick(ctx, bucket); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
		}
		ticks++
		return s.opts.MaxTicks > 0 && ticks >= s.opts.MaxTicks
	}

	if s.opts.Immediate {
		if fire(time.Now().UTC()) {
			return ErrDone
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if fire(s.bucketStart(next)) {
			return ErrDone
		}
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
