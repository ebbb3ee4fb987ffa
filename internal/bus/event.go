package bus

import "time"

// Event is a message published on the bus. Kind is dot-namespaced:
// "im." for gateway input, "outbox." for send results and "view." for the
// consolidated state offered to presentation clients.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
