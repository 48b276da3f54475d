// Package workflow drives one trade through the settlement states, calling
// the rate quoter to price it and the trade executor to mint its record.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/metrics"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/trade"
)

// DefaultFreshnessWindow applies when Options.FreshnessWindow is zero.
const DefaultFreshnessWindow = 60 * time.Second

const fallbackIDPrefix = "TRD-"

// TradeExecutor mints a record for an accepted request on behalf of cred.
type TradeExecutor interface {
	Execute(ctx context.Context, cred auth.Credential, req trade.Request) (trade.Record, error)
}

// RequestExecutor is an executor living in the same process, trusted without a credential.
type RequestExecutor interface {
	Execute(ctx context.Context, req trade.Request) (trade.Record, error)
}

// InProcess adapts a RequestExecutor to TradeExecutor.
func InProcess(e RequestExecutor) TradeExecutor {
	return inProcess{next: e}
}

type inProcess struct {
	next RequestExecutor
}

func (p inProcess) Execute(ctx context.Context, _ auth.Credential, req trade.Request) (trade.Record, error) {
	return p.next.Execute(ctx, req)
}

// Options tune the controller.
type Options struct {
	// FreshnessWindow bounds quote age at payment. Negative disables the check.
	FreshnessWindow time.Duration
	ExecutorTimeout time.Duration
	AllowFallback   bool
	Clock           func() time.Time
	Metrics         *metrics.Metrics
	NewFallbackID   func() (string, error)
	// OnSettle runs after the controller reaches Settled, outside the lock.
	OnSettle func(ctx context.Context, rec trade.Record)
}

// FieldError is the offending field of a rejected submission.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Transition is one entry of the session history.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Action Action    `json:"action"`
	At     time.Time `json:"at"`
}

// Controller owns the state of a single trade session.
type Controller struct {
	quoter   quote.Quoter
	executor TradeExecutor
	opts     Options
	logger   zerolog.Logger

	mu              sync.Mutex
	state           State
	request         *trade.Request
	quote           *trade.Quote
	record          *trade.Record
	lastErr         error
	fieldErr        *FieldError
	executionFailed bool
	history         []Transition
}

// New starts a controller in Initiated.
func New(q quote.Quoter, exec TradeExecutor, opts Options, logger zerolog.Logger) *Controller {
	if opts.FreshnessWindow == 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewFallbackID == nil {
		opts.NewFallbackID = fallbackID
	}
	return &Controller{
		quoter:   q,
		executor: exec,
		opts:     opts,
		logger:   logger.With().Str("component", "workflow").Logger(),
		state:    StateInitiated,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed action, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Record returns the trade record once one has been minted.
func (c *Controller) Record() (trade.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return trade.Record{}, false
	}
	return *c.record, true
}

// Submit validates req and prices it. On any failure the controller stays in Initiated.
func (c *Controller) Submit(ctx context.Context, req trade.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(ActionSubmit); err != nil {
		return err
	}

	req = req.Normalise()
	c.request = &req
	c.fieldErr = nil

	if err := req.Validate(); err != nil {
		var verr *trade.ValidationError
		if errors.As(err, &verr) {
			c.fieldErr = &FieldError{Field: verr.Field, Reason: verr.Reason}
		}
		c.fail(ActionSubmit, err)
		return err
	}

	q, err := c.quoter.Quote(ctx, req.Pair())
	if err != nil {
		c.fail(ActionSubmit, err)
		return err
	}

	c.quote = &q
	c.succeed()
	c.moveTo(StateQuoted, ActionSubmit)
	return nil
}

// Requote replaces the held quote and returns to Quoted.
func (c *Controller) Requote(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(ActionRequote); err != nil {
		return err
	}

	q, err := c.quoter.Quote(ctx, c.request.Pair())
	if err != nil {
		c.fail(ActionRequote, err)
		return err
	}

	c.quote = &q
	c.succeed()
	c.moveTo(StateQuoted, ActionRequote)
	return nil
}

// Back steps from Quoted to Initiated or from Accepted to Quoted.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(ActionBack); err != nil {
		return err
	}

	c.succeed()
	switch c.state {
	case StateQuoted:
		c.quote = nil
		c.moveTo(StateInitiated, ActionBack)
	case StateAccepted:
		c.moveTo(StateQuoted, ActionBack)
	}
	return nil
}

// Accept confirms the held quote.
func (c *Controller) Accept() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(ActionAccept); err != nil {
		return err
	}
	c.succeed()
	c.moveTo(StateAccepted, ActionAccept)
	return nil
}

// Pay checks cred and quote freshness, then calls the executor exactly once.
// On failure the controller stays in Accepted and the call may be retried.
func (c *Controller) Pay(ctx context.Context, cred auth.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(ActionPay); err != nil {
		return err
	}

	now := c.opts.Clock()
	if err := cred.Check(now); err != nil {
		c.fail(ActionPay, err)
		return err
	}
	if c.quote.Stale(now, c.opts.FreshnessWindow) {
		c.fail(ActionPay, ErrQuoteStale)
		return ErrQuoteStale
	}

	execCtx := ctx
	if c.opts.ExecutorTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.opts.ExecutorTimeout)
		defer cancel()
	}

	rec, err := c.executor.Execute(execCtx, cred, *c.request)
	if err != nil {
		if !classified(err) {
			err = trade.ExecutionFailed(err)
		}
		c.fail(ActionPay, err)
		c.executionFailed = errors.Is(err, trade.ErrExecutionFailed)
		return err
	}

	c.record = &rec
	c.succeed()
	c.moveTo(StatePaid, ActionPay)
	return nil
}

// PayWithFallback synthesises a record from the held quote after the executor
// failed. The record is flagged as a fallback and never passes for an executor one.
func (c *Controller) PayWithFallback() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(ActionFallback); err != nil {
		return err
	}
	if !c.opts.AllowFallback {
		return ErrFallbackDisabled
	}
	if !c.executionFailed {
		return ErrFallbackUnavailable
	}

	now := c.opts.Clock()
	if c.quote.Stale(now, c.opts.FreshnessWindow) {
		c.fail(ActionFallback, ErrQuoteStale)
		return ErrQuoteStale
	}

	id, err := c.opts.NewFallbackID()
	if err != nil {
		err = trade.ExecutionFailed(err)
		c.fail(ActionFallback, err)
		return err
	}

	rec := trade.NewRecord(id, *c.request, *c.quote, now, trade.ProvenanceFallback)
	c.record = &rec
	c.opts.Metrics.RecordExecution(nil, trade.ProvenanceFallback)
	c.logger.Warn().Str("trade_id", rec.ID).Msg("fallback trade record issued")

	c.succeed()
	c.moveTo(StatePaid, ActionFallback)
	return nil
}

// Ship marks the goods as shipped.
func (c *Controller) Ship() error {
	return c.step(ActionShip, StateShipped)
}

// Deliver confirms delivery.
func (c *Controller) Deliver() error {
	return c.step(ActionDeliver, StateDelivered)
}

// Settle completes the trade.
func (c *Controller) Settle(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guard(ActionSettle); err != nil {
		c.mu.Unlock()
		return err
	}
	c.succeed()
	c.moveTo(StateSettled, ActionSettle)
	var rec trade.Record
	if c.record != nil {
		rec = *c.record
	}
	hook := c.opts.OnSettle
	c.mu.Unlock()

	if hook != nil {
		hook(ctx, rec)
	}
	return nil
}

// Apply dispatches a by name. req is read by submit only and cred by pay only.
func (c *Controller) Apply(ctx context.Context, a Action, req trade.Request, cred auth.Credential) error {
	switch a {
	case ActionSubmit:
		return c.Submit(ctx, req)
	case ActionRequote:
		return c.Requote(ctx)
	case ActionBack:
		return c.Back()
	case ActionAccept:
		return c.Accept()
	case ActionPay:
		return c.Pay(ctx, cred)
	case ActionFallback:
		return c.PayWithFallback()
	case ActionShip:
		return c.Ship()
	case ActionDeliver:
		return c.Deliver()
	case ActionSettle:
		return c.Settle(ctx)
	default:
		return &InvalidTransitionError{From: c.State(), Action: a}
	}
}

func (c *Controller) step(a Action, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(a); err != nil {
		return err
	}
	c.succeed()
	c.moveTo(to, a)
	return nil
}

func (c *Controller) guard(a Action) error {
	if !c.state.Allows(a) {
		return &InvalidTransitionError{From: c.state, Action: a}
	}
	return nil
}

func (c *Controller) moveTo(to State, a Action) {
	from := c.state
	c.state = to
	c.history = append(c.history, Transition{From: from, To: to, Action: a, At: c.opts.Clock().UTC()})
	c.opts.Metrics.RecordTransition(string(from), string(to))
	c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("action", string(a)).Msg("transition")
}

func (c *Controller) fail(a Action, err error) {
	c.lastErr = err
	c.logger.Warn().Err(err).Str("state", string(c.state)).Str("action", string(a)).Msg("action failed")
}

func (c *Controller) succeed() {
	c.lastErr = nil
	c.fieldErr = nil
	c.executionFailed = false
}

func classified(err error) bool {
	return errors.Is(err, trade.ErrInvalidRequest) ||
		errors.Is(err, trade.ErrRateUnavailable) ||
		errors.Is(err, trade.ErrExecutionFailed) ||
		errors.Is(err, auth.ErrMissingCredential) ||
		errors.Is(err, auth.ErrCredentialExpired) ||
		errors.Is(err, auth.ErrInvalidCredential)
}

func fallbackID() (string, error) {
	gen, err := nanoid.Standard(15)
	if err != nil {
		return "", err
	}
	return fallbackIDPrefix + gen(), nil
}
