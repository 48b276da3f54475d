package workflow

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"trade-settlement/internal/quote"
	"trade-settlement/internal/trade"
)

// QuoteView is the held quote plus its freshness at render time.
type QuoteView struct {
	trade.Quote
	Stale bool `json:"stale"`
}

// View is a read-only rendering of a session.
type View struct {
	State             State          `json:"state"`
	Request           *trade.Request `json:"request,omitempty"`
	Quote             *QuoteView     `json:"quote,omitempty"`
	ConvertedAmount   string         `json:"convertedAmount,omitempty"`
	Record            *trade.Record  `json:"record,omitempty"`
	LastError         string         `json:"lastError,omitempty"`
	FieldError        *FieldError    `json:"fieldError,omitempty"`
	FallbackAvailable bool           `json:"fallbackAvailable"`
	Actions           []Action       `json:"actions"`
	History           []Transition   `json:"history"`
}

// View renders the current session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:             c.state,
		FallbackAvailable: c.fallbackAvailable(),
		Actions:           c.actions(),
		History:           append([]Transition{}, c.history...),
	}
	if c.request != nil {
		req := *c.request
		v.Request = &req
	}
	if c.quote != nil {
		v.Quote = &QuoteView{Quote: *c.quote, Stale: c.quote.Stale(c.opts.Clock(), c.opts.FreshnessWindow)}
		if c.request != nil {
			v.ConvertedAmount = trade.Convert(c.request.Amount, c.quote.Rate).StringFixed(trade.AmountPlaces)
		}
	}
	if c.record != nil {
		rec := *c.record
		v.Record = &rec
		v.ConvertedAmount = rec.ConvertedAmount.StringFixed(trade.AmountPlaces)
	}
	if c.lastErr != nil {
		v.LastError = c.lastErr.Error()
	}
	if c.fieldErr != nil {
		fe := *c.fieldErr
		v.FieldError = &fe
	}
	return v
}

func (c *Controller) fallbackAvailable() bool {
	return c.opts.AllowFallback && c.executionFailed && c.state == StateAccepted
}

func (c *Controller) actions() []Action {
	out := make([]Action, 0, 3)
	for _, a := range Actions {
		if !c.state.Allows(a) {
			continue
		}
		if a == ActionFallback && !c.fallbackAvailable() {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Snapshot is the persistable state of a controller. Owner is carried for
// the store and is not interpreted by the controller.
type Snapshot struct {
	Owner           string         `json:"owner,omitempty"`
	State           State          `json:"state"`
	Request         *trade.Request `json:"request,omitempty"`
	Quote           *trade.Quote   `json:"quote,omitempty"`
	Record          *trade.Record  `json:"record,omitempty"`
	LastError       string         `json:"lastError,omitempty"`
	FieldError      *FieldError    `json:"fieldError,omitempty"`
	ExecutionFailed bool           `json:"executionFailed,omitempty"`
	History         []Transition   `json:"history,omitempty"`
}

// Snapshot captures the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:           c.state,
		Request:         c.request,
		Quote:           c.quote,
		Record:          c.record,
		FieldError:      c.fieldErr,
		ExecutionFailed: c.executionFailed,
		History:         append([]Transition(nil), c.history...),
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Restore rebuilds a controller from snap. A snapshot whose state is unknown
// or lacks the request, quote or record that state implies is rejected with
// ErrCorruptSnapshot.
func Restore(snap Snapshot, q quote.Quoter, exec TradeExecutor, opts Options, logger zerolog.Logger) (*Controller, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}
	c := New(q, exec, opts, logger)
	if snap.State != "" {
		c.state = snap.State
	}
	c.request = snap.Request
	c.quote = snap.Quote
	c.record = snap.Record
	c.fieldErr = snap.FieldError
	c.executionFailed = snap.ExecutionFailed
	c.history = snap.History
	if snap.LastError != "" {
		c.lastErr = errors.New(snap.LastError)
	}
	return c, nil
}

func (s Snapshot) validate() error {
	state := s.State
	if state == "" {
		state = StateInitiated
	}
	if !state.Known() {
		return fmt.Errorf("%w: unknown state %q", ErrCorruptSnapshot, s.State)
	}
	if state.holdsQuote() && (s.Request == nil || s.Quote == nil) {
		return fmt.Errorf("%w: %s without request or quote", ErrCorruptSnapshot, state)
	}
	if state.holdsRecord() && s.Record == nil {
		return fmt.Errorf("%w: %s without trade record", ErrCorruptSnapshot, state)
	}
	return nil
}
