package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/trade"
	"trade-settlement/internal/workflow"
)

// Simulate walks a conversion to Settled against a pinned rate without
// touching the network. FailExecutor makes every payment fail so the fallback
// path is exercised.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	return a.simulate(ctx, opts, os.Stdout)
}

func (a *App) simulate(ctx context.Context, opts SimulateOptions, out io.Writer) error {
	rate, err := decimal.NewFromString(opts.Rate)
	if err != nil || !rate.IsPositive() {
		return errors.New("--rate must be a positive number")
	}
	req, err := parseRequest(opts.From, opts.To, opts.Amount)
	if err != nil {
		return err
	}

	q := quote.NewFixed(rate)
	var exec workflow.TradeExecutor = workflow.InProcess(a.newExecutor(q, nil, nil))
	wopts := a.workflowOptions(nil)
	if opts.FailExecutor {
		exec = unavailableExecutor{}
		wopts.AllowFallback = true
	}

	cred := auth.Credential{Token: "simulated", ExpiresAt: time.Now().Add(time.Hour)}
	ctrl := workflow.New(q, exec, wopts, a.Logger)
	w := &walkthrough{ctrl: ctrl, req: req, cred: cred, out: out}
	if err := w.auto(ctx); err != nil {
		return err
	}

	rec, ok := ctrl.Record()
	if !ok {
		return errors.New("simulation finished without a trade record")
	}
	fmt.Fprintf(out, "settled %s %s -> %s %s (%s)\n",
		rec.OriginalAmount.String(), rec.Base, rec.ConvertedAmount.StringFixed(trade.AmountPlaces), rec.Quote, rec.Provenance)
	return nil
}

// unavailableExecutor stands in for an unreachable trade service.
type unavailableExecutor struct{}

func (unavailableExecutor) Execute(context.Context, auth.Credential, trade.Request) (trade.Record, error) {
	return trade.Record{}, trade.ExecutionFailed(errors.New("simulated executor outage"))
}

var _ workflow.TradeExecutor = unavailableExecutor{}
