package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock hands out identifiers for gateway operations and outgoing messages.
// Operation IDs are strictly increasing within a process even when the wall
// clock stalls or steps backwards.
type Clock struct {
	mu     sync.Mutex
	now    func() time.Time
	lastMs int64
	seq    int
}

// New creates a clock reading the system time.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithTime creates a clock with an injected time source (tests).
func NewWithTime(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// OperationID returns "<unix ms><3-digit sequence>", the same shape the
// gateway accepts for operationID.
func (c *Clock) OperationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	switch {
	case ms > c.lastMs:
		c.lastMs = ms
		c.seq = 0
	default:
		c.seq++
		if c.seq > 999 {
			c.lastMs++
			c.seq = 0
		}
	}
	return fmt.Sprintf("%d%03d", c.lastMs, c.seq)
}

// ClientMsgID returns a new time-ordered message identifier.
func (c *Clock) ClientMsgID() string {
	return newV7()
}

// CorrelationID returns a new identifier linking the parts of one logical send.
func (c *Clock) CorrelationID() string {
	return newV7()
}

func newV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
