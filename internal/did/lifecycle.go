package did

import (
	"fmt"

	dErrors "praman/pkg/domain-errors"
)

// State is a step in the enrollment to verification lifecycle.
type State string

const (
	StateKeyGenerated     State = "KeyGenerated"
	StateDIDDerived       State = "DIDDerived"
	StateCredentialIssued State = "CredentialIssued"
	StateVerified         State = "Verified"
	StateRejected         State = "Rejected"
)

var transitions = map[State][]State{
	StateKeyGenerated:     {StateDIDDerived, StateRejected},
	StateDIDDerived:       {StateCredentialIssued, StateRejected},
	StateCredentialIssued: {StateVerified, StateRejected},
}

// IsTerminal reports whether no transition leaves s. A rejected subject
// starts over from a fresh KeyGenerated cycle.
func (s State) IsTerminal() bool {
	return s == StateVerified || s == StateRejected
}

// Transition validates a single step of the lifecycle.
func Transition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("illegal lifecycle transition %s -> %s", from, to))
}

// Lifecycle tracks the state of one subject through a single flow.
// It is not safe for concurrent use.
type Lifecycle struct {
	state State
}

// NewLifecycle starts a lifecycle at KeyGenerated.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateKeyGenerated}
}

// ResumeLifecycle starts a lifecycle at an arbitrary state, for flows that
// pick up a subject mid-way (issuance starts at DIDDerived).
func ResumeLifecycle(s State) *Lifecycle {
	return &Lifecycle{state: s}
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.state }

// Advance moves to the next state or returns InvalidInput.
func (l *Lifecycle) Advance(to State) error {
	if err := Transition(l.state, to); err != nil {
		return err
	}
	l.state = to
	return nil
}
