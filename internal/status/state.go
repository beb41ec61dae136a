package status

import (
	"fmt"
	"slices"
	"sync"
)

// State represents the connection state of the logical session.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions. Disconnected is
// reachable from everywhere because disconnect is idempotent and accepted
// in any state. Connecting is only entered from Disconnected or Failed,
// matching the rule that only those two states accept a fresh connect;
// Reconnecting may also re-enter Connecting when the transport gives up
// and the session is dialed from scratch.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Failed, Disconnected},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connected, Connecting, Failed, Disconnected},
	Failed:       {Connecting, Disconnected},
}

// Machine tracks and enforces session connection state transitions.
// Exactly one Machine exists per logical session.
type Machine struct {
	mu      sync.RWMutex
	current State
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine() *Machine {
	return &Machine{current: Disconnected}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.current = to
	return nil
}
