package timeline

import "fmt"

// State is the pagination state of a timeline.
type State string

const (
	Idle           State = "IDLE"
	LoadingInitial State = "LOADING_INITIAL"
	LoadingOlder   State = "LOADING_OLDER"
	Exhausted      State = "EXHAUSTED"
	Error          State = "ERROR"
)

var validTransitions = map[State][]State{
	Idle:           {LoadingInitial, LoadingOlder},
	LoadingInitial: {Idle, Error, LoadingInitial},
	LoadingOlder:   {Idle, Exhausted, LoadingInitial},
	Exhausted:      {LoadingInitial},
	Error:          {LoadingInitial},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves the timeline to a new state. Callers hold t.mu.
func (t *Timeline) transition(to State) error {
	if !canTransition(t.state, to) {
		return fmt.Errorf("invalid timeline transition %s -> %s", t.state, to)
	}
	t.state = to
	return nil
}
