package bus

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// inputPrefix marks gateway input kinds. Losing one of them loses state
// until the next resync, so their drops are logged.
const inputPrefix = "im."

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// Events published with PublishRetained are kept, latest per kind, and
// replayed to SubscribeReplay subscribers before any live event.
type Bus struct {
	mu       sync.RWMutex
	subs     map[int]*subscription
	next     int
	retained map[string]Event
	log      *zap.Logger
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs:     make(map[int]*subscription),
		retained: make(map[string]Event),
		log:      zap.NewNop(),
	}
}

// SetLogger sets the logger used to report dropped events.
func (b *Bus) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	b.mu.Lock()
	b.log = log
	b.mu.Unlock()
}

// Publish sends an event to all subscribers whose namespace is a prefix of event.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.fanOutLocked(evt)
}

// PublishRetained publishes evt and keeps it as the latest event of its kind.
func (b *Bus) PublishRetained(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained[evt.Kind] = evt
	b.fanOutLocked(evt)
}

func (b *Bus) fanOutLocked(evt Event) {
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber is full; the event is dropped.
				if strings.HasPrefix(evt.Kind, inputPrefix) {
					b.log.Warn("dropped event for full subscriber",
						zap.String("kind", evt.Kind),
						zap.String("namespace", sub.namespace),
						zap.Int("buffer", cap(sub.ch)),
					)
				}
			}
		}
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.add(namespace, ch)
	b.mu.Unlock()
	return ch, b.unsubscribe(id)
}

// SubscribeReplay is Subscribe preceded by the retained event of every
// matching kind, in kind order. Replayed events that do not fit in bufSize
// are dropped like live ones.
func (b *Bus) SubscribeReplay(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	kinds := make([]string, 0, len(b.retained))
	for kind := range b.retained {
		if strings.HasPrefix(kind, namespace) {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		select {
		case ch <- b.retained[kind]:
		default:
		}
	}
	id := b.add(namespace, ch)
	b.mu.Unlock()
	return ch, b.unsubscribe(id)
}

// Latest returns the retained event of kind.
func (b *Bus) Latest(kind string) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	evt, ok := b.retained[kind]
	return evt, ok
}

func (b *Bus) add(namespace string, ch chan Event) int {
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	return id
}

func (b *Bus) unsubscribe(id int) func() {
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
