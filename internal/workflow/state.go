package workflow

import (
	"errors"
	"fmt"
)

// State is a step of the settlement workflow.
type State string

const (
	StateInitiated State = "initiated"
	StateQuoted    State = "quoted"
	StateAccepted  State = "accepted"
	StatePaid      State = "paid"
	StateShipped   State = "shipped"
	StateDelivered State = "delivered"
	StateSettled   State = "settled"
)

// Action names a user step.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionRequote  Action = "requote"
	ActionBack     Action = "back"
	ActionAccept   Action = "accept"
	ActionPay      Action = "pay"
	ActionFallback Action = "fallback"
	ActionShip     Action = "ship"
	ActionDeliver  Action = "deliver"
	ActionSettle   Action = "settle"
)

// Actions lists every action in presentation order.
var Actions = []Action{
	ActionSubmit, ActionRequote, ActionBack, ActionAccept, ActionPay,
	ActionFallback, ActionShip, ActionDeliver, ActionSettle,
}

var allowed = map[Action][]State{
	ActionSubmit:   {StateInitiated},
	ActionRequote:  {StateQuoted, StateAccepted},
	ActionBack:     {StateQuoted, StateAccepted},
	ActionAccept:   {StateQuoted},
	ActionPay:      {StateAccepted},
	ActionFallback: {StateAccepted},
	ActionShip:     {StatePaid},
	ActionDeliver:  {StateShipped},
	ActionSettle:   {StateDelivered},
}

// Allows reports whether a may be taken from s.
func (s State) Allows(a Action) bool {
	for _, from := range allowed[a] {
		if from == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further action is possible.
func (s State) Terminal() bool {
	return s == StateSettled
}

// Known reports whether s is one of the workflow states.
func (s State) Known() bool {
	switch s {
	case StateInitiated, StateQuoted, StateAccepted, StatePaid, StateShipped, StateDelivered, StateSettled:
		return true
	}
	return false
}

// holdsQuote reports whether a controller in s always has a request and quote.
func (s State) holdsQuote() bool {
	return s != StateInitiated
}

// holdsRecord reports whether a controller in s always has a trade record.
func (s State) holdsRecord() bool {
	switch s {
	case StatePaid, StateShipped, StateDelivered, StateSettled:
		return true
	}
	return false
}

// ParseAction resolves a path segment into an Action.
func ParseAction(name string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == name {
			return a, true
		}
	}
	return "", false
}

var (
	// ErrInvalidTransition is returned for an action not legal in the current state.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrQuoteStale is returned when the held quote is older than the freshness window.
	ErrQuoteStale = errors.New("quote is stale; requote before paying")
	// ErrFallbackDisabled is returned when local fallback records are not allowed.
	ErrFallbackDisabled = errors.New("fallback records are disabled")
	// ErrFallbackUnavailable is returned until a payment attempt has failed at the executor.
	ErrFallbackUnavailable = errors.New("fallback requires a failed execution attempt")
	// ErrCorruptSnapshot is returned by Restore for a snapshot no controller could have produced.
	ErrCorruptSnapshot = errors.New("corrupt workflow snapshot")
)

// InvalidTransitionError describes a rejected action.
type InvalidTransitionError struct {
	From   State
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", ErrInvalidTransition.Error(), e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
