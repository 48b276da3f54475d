package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/trade"
	"trade-settlement/internal/workflow"
)

// autoSteps is the unattended path from Quoted to Settled.
var autoSteps = []workflow.Action{
	workflow.ActionAccept,
	workflow.ActionPay,
	workflow.ActionShip,
	workflow.ActionDeliver,
	workflow.ActionSettle,
}

// walkthrough drives a controller from the terminal.
type walkthrough struct {
	ctrl *workflow.Controller
	req  trade.Request
	cred auth.Credential
	out  io.Writer
}

// auto submits req and advances to Settled. A pay failure that leaves the
// fallback available is followed by one fallback attempt.
func (w *walkthrough) auto(ctx context.Context) error {
	if err := w.step(ctx, workflow.ActionSubmit); err != nil {
		return err
	}
	for _, a := range autoSteps {
		err := w.step(ctx, a)
		if err == nil {
			continue
		}
		if a == workflow.ActionPay && w.ctrl.View().FallbackAvailable {
			fmt.Fprintln(w.out, "executor failed; issuing fallback record")
			if ferr := w.step(ctx, workflow.ActionFallback); ferr == nil {
				continue
			}
		}
		return err
	}
	return nil
}

// interactive reads one action per line from in until the session settles,
// the input ends or the user types quit.
func (w *walkthrough) interactive(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	if err := w.step(ctx, workflow.ActionSubmit); err != nil && w.ctrl.State() == workflow.StateInitiated {
		return err
	}

	for !w.ctrl.State().Terminal() {
		fmt.Fprintf(w.out, "action [%s, quit]: ", joinActions(w.ctrl.View().Actions))
		if !scanner.Scan() {
			fmt.Fprintln(w.out)
			return scanner.Err()
		}
		name := strings.ToLower(strings.TrimSpace(scanner.Text()))
		switch name {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		action, ok := workflow.ParseAction(name)
		if !ok {
			fmt.Fprintf(w.out, "unknown action %q\n", name)
			continue
		}
		if err := w.step(ctx, action); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// step applies a and prints the resulting view. Rejected actions print the
// error alongside the unchanged view.
func (w *walkthrough) step(ctx context.Context, a workflow.Action) error {
	err := w.ctrl.Apply(ctx, a, w.req, w.cred)
	if err != nil {
		fmt.Fprintf(w.out, "%s failed: %s\n", a, sanitizeInline(err.Error()))
	}
	if rerr := renderView(w.out, w.ctrl.View()); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func renderView(out io.Writer, v workflow.View) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "State\t%s\n", v.State)
	if v.Request != nil {
		fmt.Fprintf(writer, "Request\t%s %s -> %s\n", v.Request.Amount.String(), v.Request.Base, v.Request.Quote)
	}
	if v.Quote != nil {
		stale := ""
		if v.Quote.Stale {
			stale = " (stale)"
		}
		fmt.Fprintf(writer, "Rate\t%s from %s at %s%s\n", v.Quote.Rate.String(), v.Quote.Source, v.Quote.FetchedAt.Format(time.RFC3339), stale)
	}
	if v.ConvertedAmount != "" {
		fmt.Fprintf(writer, "Converted\t%s\n", v.ConvertedAmount)
	}
	if v.Record != nil {
		fmt.Fprintf(writer, "Trade\t%s (%s)\n", v.Record.ID, v.Record.Provenance)
	}
	if v.FieldError != nil {
		fmt.Fprintf(writer, "Invalid\t%s %s\n", v.FieldError.Field, v.FieldError.Reason)
	}
	if v.LastError != "" {
		fmt.Fprintf(writer, "Error\t%s\n", sanitizeInline(v.LastError))
	}
	if v.FallbackAvailable {
		fmt.Fprintln(writer, "Fallback\tavailable")
	}
	fmt.Fprintln(writer)
	return writer.Flush()
}

func joinActions(actions []workflow.Action) string {
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func parseRequest(from, to, amount string) (trade.Request, error) {
	req := trade.Request{Base: from, Quote: to}
	if strings.TrimSpace(amount) == "" {
		return req, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return trade.Request{}, &trade.ValidationError{Field: "amount", Reason: "is not a number"}
	}
	req.Amount = value
	return req.Normalise(), nil
}
