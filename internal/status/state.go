package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/imsync/internal/bus"
)

// State is the connection state of the gateway link.
type State string

const (
	Disconnected  State = "DISCONNECTED"
	Connecting    State = "CONNECTING"
	Connected     State = "CONNECTED"
	ConnectFailed State = "CONNECT_FAILED"
	KickedOffline State = "KICKED_OFFLINE"
)

// KindChanged is the bus event published on every transition.
const KindChanged = "im.connection"

var validTransitions = map[State][]State{
	Disconnected:  {Connecting},
	Connecting:    {Connected, ConnectFailed, KickedOffline, Disconnected},
	Connected:     {Connecting, KickedOffline, Disconnected},
	ConnectFailed: {Connecting, Disconnected},
	KickedOffline: {Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state and publishes the change. Moving to the
// current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.PublishRetained(bus.Event{
			Kind:      KindChanged,
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}

// Online reports whether the link can carry requests.
func (m *Machine) Online() bool {
	return m.Current() == Connected
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
