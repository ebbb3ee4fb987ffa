package status

import (
	"testing"

	"github.com/matheus3301/imsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
	if m.Online() {
		t.Error("new machine should not be online")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, ConnectFailed},
		{Connecting, KickedOffline},
		{Connected, Connecting},
		{Connected, KickedOffline},
		{Connected, Disconnected},
		{ConnectFailed, Connecting},
		{KickedOffline, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connected},
		{ConnectFailed, Connected},
		{KickedOffline, Connected},
	}
	for _, tt := range tests {
		m := NewMachine(nil)
		walkTo(t, m, tt.from)
		if err := m.Transition(tt.to); err == nil {
			t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
		}
		if m.Current() != tt.from {
			t.Errorf("state = %s, want %s (unchanged)", m.Current(), tt.from)
		}
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	walkTo(t, m, Connecting)
	ch, unsub := b.Subscribe("im.", 10)
	defer unsub()

	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("Transition(CONNECTING -> CONNECTING) = %v", err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	default:
	}
}

func TestTransitionEmitsRetainedEvent(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Connected); err != nil {
		t.Fatal(err)
	}

	// A late subscriber still learns the current state.
	ch, unsub := b.SubscribeReplay("im.", 10)
	defer unsub()
	evt := <-ch
	if evt.Kind != KindChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, KindChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Connecting || change.To != Connected {
		t.Errorf("change = %v -> %v, want CONNECTING -> CONNECTED", change.From, change.To)
	}
	if !m.Online() {
		t.Error("machine should be online")
	}
}

// TestKickedOfflineRequiresReconnect checks that a kicked session cannot
// report itself connected without a new connect attempt.
func TestKickedOfflineRequiresReconnect(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, KickedOffline)

	steps := []State{Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected:  {},
		Connecting:    {Connecting},
		Connected:     {Connecting, Connected},
		ConnectFailed: {Connecting, ConnectFailed},
		KickedOffline: {Connecting, Connected, KickedOffline},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
