package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"trade-settlement/internal/server"
)

// Serve runs the HTTP API until SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m, reg := newMetrics()

	pub, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close event publisher")
		}
	}()

	sessions, err := a.newSessions(ctx)
	if err != nil {
		return err
	}
	defer sessions.Close()

	verifier, err := a.newVerifier()
	if err != nil {
		return err
	}

	q := a.newQuoter(m)
	srv := server.New(server.Deps{
		Quoter:   q,
		Executor: a.newExecutor(q, pub, m),
		Verifier: verifier,
		Sessions: sessions,
		Workflow: a.workflowOptions(m),
		Notifier: a.newNotifier(),
		Gatherer: reg,
	}, server.Options{
		Addr:            a.Config.Server.Addr,
		ReadTimeout:     a.Config.Server.ReadTimeout,
		WriteTimeout:    a.Config.Server.WriteTimeout,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
		BodyLimit:       a.Config.Server.BodyLimit,
		AllowOrigins:    a.Config.Server.AllowOrigins,
		RateLimit:       a.Config.Server.RateLimit,
		RateWindow:      a.Config.Server.RateWindow,
	}, a.Logger)

	a.Logger.Info().Str("addr", a.Config.Server.Addr).Msg("starting trade settlement service")
	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("trade settlement service stopped")
	return nil
}
