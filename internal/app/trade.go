package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/execclient"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/workflow"
)

// Trade walks one conversion through the workflow. The executor is remote
// when workflow.executor_url is set and in process otherwise.
func (a *App) Trade(ctx context.Context, opts TradeOptions) error {
	return a.trade(ctx, opts, os.Stdin, os.Stdout)
}

func (a *App) trade(ctx context.Context, opts TradeOptions, in io.Reader, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req, err := parseRequest(opts.From, opts.To, opts.Amount)
	if err != nil {
		return err
	}

	if a.Config.Auth.Token == "" {
		return errors.New("auth.token not configured; a bearer token is required to pay")
	}
	cred, err := auth.ParseCredential(a.Config.Auth.Token)
	if err != nil {
		return fmt.Errorf("parse auth.token: %w", err)
	}

	q := a.newQuoter(nil)
	exec, closeExec, err := a.tradeExecutor(q)
	if err != nil {
		return err
	}
	defer closeExec()

	ctrl := workflow.New(q, exec, a.workflowOptions(nil), a.Logger)
	w := &walkthrough{ctrl: ctrl, req: req, cred: cred, out: out}
	if opts.Interactive {
		return w.interactive(ctx, in)
	}
	return w.auto(ctx)
}

func (a *App) tradeExecutor(q quote.Quoter) (workflow.TradeExecutor, func(), error) {
	if url := a.Config.Workflow.ExecutorURL; url != "" {
		client, err := execclient.New(execclient.Options{
			BaseURL:   url,
			Timeout:   a.Config.Workflow.ExecutorTimeout,
			UserAgent: a.Config.Quote.UserAgent,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		a.Logger.Info().Str("executor_url", url).Msg("using remote executor")
		return client, func() {}, nil
	}

	pub, err := a.newPublisher()
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := pub.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close event publisher")
		}
	}
	return workflow.InProcess(a.newExecutor(q, pub, nil)), closer, nil
}
