// Package session implements SessionStore: the swap session entity, its
// state machine, and timelock derivation.
package session

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is wrapped with the attempted from/to states.
var ErrInvalidTransition = errors.New("illegal session state transition")

// State is a session's position in the swap lifecycle.
type State string

const (
	StateInitialized       State = "initialized"
	StateExecuting         State = "executing"
	StateSourceLocking     State = "source_locking"
	StateSourceLocked      State = "source_locked"
	StateDestinationLocking State = "destination_locking"
	StateBothLocked        State = "both_locked"
	StateRevealingSecret   State = "revealing_secret"
	StateCompleted         State = "completed"
	StateCancelling        State = "cancelling"
	StateCancelled         State = "cancelled"
	StateFailed            State = "failed"
	StateTimeout           State = "timeout"
	StateRefunding         State = "refunding"
	StateRefunded          State = "refunded"
)

// transitions enumerates every legal edge; anything absent is illegal.
var transitions = map[State][]State{
	StateInitialized:        {StateExecuting, StateCancelled},
	StateExecuting:          {StateSourceLocking, StateCancelled, StateFailed},
	StateSourceLocking:      {StateSourceLocked, StateFailed},
	StateSourceLocked:       {StateDestinationLocking, StateCancelling, StateTimeout},
	StateDestinationLocking: {StateBothLocked, StateFailed},
	StateBothLocked:         {StateRevealingSecret, StateTimeout},
	StateRevealingSecret:    {StateCompleted, StateFailed},
	StateCancelling:         {StateRefunding, StateCancelled},
	StateTimeout:            {StateRefunding},
	StateRefunding:          {StateRefunded},
}

// terminalStates have no outgoing edges; a session here never changes again.
var terminalStates = map[State]bool{
	StateCompleted: true,
	StateCancelled: true,
	StateFailed:    true,
	StateRefunded:  true,
}

// IsTerminal reports whether s has no further legal transitions.
func IsTerminal(s State) bool {
	return terminalStates[s]
}

// TerminalStates returns the canonical list of terminal states, for storage
// queries that need an IN (...) clause.
func TerminalStates() []string {
	out := make([]string, 0, len(terminalStates))
	for s := range terminalStates {
		out = append(out, string(s))
	}
	return out
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns ErrInvalidTransition if from -> to is not a legal edge.
func Validate(from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
