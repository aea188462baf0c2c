package gateway

import (
	"fmt"
	"sync"
)

// State tracks where a connection is in its lifecycle.
type State string

const (
	StateConnecting    State = "CONNECTING"
	StateAuthenticated State = "AUTHENTICATED"
	StateActive        State = "ACTIVE"
	StateDisconnected  State = "DISCONNECTED"
)

// validTransitions defines the allowed lifecycle edges. A connection that
// fails authentication goes straight to disconnected and never becomes
// visible to the presence registry.
var validTransitions = map[State][]State{
	StateConnecting:    {StateAuthenticated, StateDisconnected},
	StateAuthenticated: {StateActive, StateDisconnected},
	StateActive:        {StateDisconnected},
	StateDisconnected:  {},
}

type stateMachine struct {
	mu      sync.Mutex
	current State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateConnecting}
}

func (m *stateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range validTransitions[m.current] {
		if allowed == to {
			m.current = to
			return nil
		}
	}
	return fmt.Errorf("invalid state transition: %s -> %s", m.current, to)
}
