package gate

import "fmt"

// State names the phases of one gate run. Runs only move forward; any
// fault jumps to StateFailed and the run ends there.
type State string

const (
	StateStarted              State = "started"
	StateRetrieved            State = "retrieved"
	StateValidated            State = "validated"
	StateBlocked              State = "blocked"
	StateAuthorizationChecked State = "authorization_checked"
	StateDenied               State = "denied"
	StateTriggered            State = "triggered"
	StateReported             State = "reported"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

var transitions = map[State][]State{
	StateStarted:              {StateRetrieved, StateFailed},
	StateRetrieved:            {StateValidated, StateFailed},
	StateValidated:            {StateBlocked, StateAuthorizationChecked, StateFailed},
	StateBlocked:              {StateReported, StateFailed},
	StateAuthorizationChecked: {StateDenied, StateTriggered, StateFailed},
	StateDenied:               {StateReported, StateFailed},
	StateTriggered:            {StateReported, StateFailed},
	StateReported:             {StateDone},
	StateDone:                 {},
	StateFailed:               {},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine tracks the current phase and rejects illegal steps. An illegal
// step is a programming error in the orchestration, so it surfaces as an
// error rather than being silently absorbed.
type Machine struct {
	current State
}

func NewMachine() *Machine {
	return &Machine{current: StateStarted}
}

func (m *Machine) Current() State {
	return m.current
}

func (m *Machine) To(next State) error {
	if !CanTransition(m.current, next) {
		return fmt.Errorf("illegal transition %s -> %s", m.current, next)
	}
	m.current = next
	return nil
}

// Fail force-ends the run. Faults are legal from any non-terminal state.
func (m *Machine) Fail() {
	m.current = StateFailed
}

// Terminal reports whether the run has ended.
func Terminal(s State) bool {
	return s == StateDone || s == StateFailed
}
