package transport

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/flicksocial/flick/internal/bus"
)

// State is the connection lifecycle state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
)

// validTransitions defines allowed lifecycle transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Disconnected},
}

// StatusChange is the payload for conn.status_changed events.
type StatusChange struct {
	From State
	To   State
}

// stateMachine tracks and enforces connection lifecycle transitions,
// publishing each change on the bus.
type stateMachine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

func newStateMachine(b *bus.Bus) *stateMachine {
	return &stateMachine{current: Disconnected, bus: b}
}

func (m *stateMachine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *stateMachine) Transition(to State) error {
	m.mu.Lock()
	if !slices.Contains(validTransitions[m.current], to) {
		current := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", current, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindConnStatusChanged,
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}
