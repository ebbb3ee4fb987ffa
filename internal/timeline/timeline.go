// Package timeline keeps the ordered, deduplicated message list of the active
// conversation and pages older history into it.
package timeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/model"
)

// DefaultPageSize is the number of messages requested per history page.
const DefaultPageSize = 40

// HistoryFetcher fetches up to count messages older than startClientMsgID,
// oldest first. An empty startClientMsgID requests the newest page.
type HistoryFetcher interface {
	History(ctx context.Context, conversationID, startClientMsgID string, count int) ([]model.Message, error)
}

// Timeline holds the messages of one conversation in arrival order.
type Timeline struct {
	fetch    HistoryFetcher
	pageSize int
	policy   Policy
	log      *zap.Logger

	mu             sync.Mutex
	conversationID string
	messages       []model.Message
	seen           map[string]struct{}
	held           []model.Message // live arrivals while the initial page is in flight
	state          State
	gen            uint64
}

// New creates an empty timeline.
func New(fetch HistoryFetcher, pageSize int, policy Policy, log *zap.Logger) *Timeline {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Timeline{
		fetch:    fetch,
		pageSize: pageSize,
		policy:   policy,
		log:      log,
		seen:     make(map[string]struct{}),
		state:    Idle,
	}
}

// InitialLoad clears the timeline and replaces it with the newest page of
// conversationID. A load for a different conversation supersedes one in
// flight; the superseded call returns model.ErrStaleResponse.
func (t *Timeline) InitialLoad(ctx context.Context, conversationID string) ([]model.Message, error) {
	t.mu.Lock()
	if t.state == LoadingInitial && t.conversationID == conversationID {
		t.mu.Unlock()
		return nil, model.ErrLoadInFlight
	}
	t.gen++
	gen := t.gen
	t.conversationID = conversationID
	t.messages = nil
	t.held = nil
	t.seen = make(map[string]struct{})
	_ = t.transition(LoadingInitial)
	t.mu.Unlock()

	page, err := t.fetch.History(ctx, conversationID, "", t.pageSize)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		t.log.Debug("discarding stale initial page", zap.String("conversation_id", conversationID))
		return nil, model.ErrStaleResponse
	}
	t.mergeHeldLocked(page)
	if err != nil {
		_ = t.transition(Error)
		return nil, &model.FetchError{Op: "initial load", ConversationID: conversationID, Err: err}
	}
	_ = t.transition(Idle)
	t.log.Debug("initial page loaded",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(t.messages)),
	)
	return t.snapshotLocked(), nil
}

// LoadOlder prepends the page older than the current oldest message and
// returns how many messages were added. It does nothing when the history is
// exhausted, a load is running, the last initial load failed or the timeline
// is empty. A failed fetch leaves the messages untouched and the timeline
// idle, so the call can be retried.
func (t *Timeline) LoadOlder(ctx context.Context) (int, error) {
	t.mu.Lock()
	if t.state != Idle || len(t.messages) == 0 {
		t.mu.Unlock()
		return 0, nil
	}
	_ = t.transition(LoadingOlder)
	gen := t.gen
	conversationID := t.conversationID
	cursor := t.messages[0].ClientMsgID
	t.mu.Unlock()

	page, err := t.fetch.History(ctx, conversationID, cursor, t.pageSize)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		t.log.Debug("discarding stale older page", zap.String("conversation_id", conversationID))
		return 0, model.ErrStaleResponse
	}
	if err != nil {
		_ = t.transition(Idle)
		return 0, &model.FetchError{Op: "load older", ConversationID: conversationID, Err: err}
	}

	older := make([]model.Message, 0, len(page))
	for _, m := range page {
		if _, dup := t.seen[m.ClientMsgID]; dup || m.ClientMsgID == "" {
			continue
		}
		t.seen[m.ClientMsgID] = struct{}{}
		older = append(older, m)
	}
	if len(older) > 0 {
		t.messages = append(older, t.messages...)
	}

	// A page made only of known messages makes no progress; treat it as the end.
	if len(page) < t.pageSize || len(older) == 0 {
		_ = t.transition(Exhausted)
	} else {
		_ = t.transition(Idle)
	}
	t.log.Debug("older page loaded",
		zap.String("conversation_id", conversationID),
		zap.Int("added", len(older)),
		zap.String("state", string(t.state)),
	)
	return len(older), nil
}

// Ingest appends a live message at the tail. It returns false when the
// clientMsgID is already present. While the initial page is loading the
// message is held and placed after the page once it arrives.
func (t *Timeline) Ingest(m model.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ingestLocked(m)
}

// RecordOutcome ingests the server-confirmed messages of a send and returns
// how many were new.
func (t *Timeline) RecordOutcome(msgs []model.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range msgs {
		if t.ingestLocked(m) {
			n++
		}
	}
	return n
}

func (t *Timeline) ingestLocked(m model.Message) bool {
	if t.state != LoadingInitial {
		return t.appendLocked(m)
	}
	if m.ClientMsgID == "" {
		return false
	}
	if _, dup := t.seen[m.ClientMsgID]; dup {
		return false
	}
	t.seen[m.ClientMsgID] = struct{}{}
	t.held = append(t.held, m)
	return true
}

// mergeHeldLocked rebuilds the messages from page and re-appends the held
// live arrivals the page does not already contain.
func (t *Timeline) mergeHeldLocked(page []model.Message) {
	held := t.held
	t.held = nil
	t.messages = nil
	t.seen = make(map[string]struct{}, len(page)+len(held))
	for _, m := range page {
		t.appendLocked(m)
	}
	for _, m := range held {
		t.appendLocked(m)
	}
}

func (t *Timeline) appendLocked(m model.Message) bool {
	if m.ClientMsgID == "" {
		return false
	}
	if _, dup := t.seen[m.ClientMsgID]; dup {
		return false
	}
	t.seen[m.ClientMsgID] = struct{}{}
	t.messages = append(t.messages, m)
	return true
}

// Revoke turns a message into a recalled message and clears its content.
func (t *Timeline) Revoke(clientMsgID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].ClientMsgID == clientMsgID {
			t.messages[i].ContentType = model.Revoke
			t.messages[i].Content = model.Content{}
			return true
		}
	}
	return false
}

// MarkRead flags every message as read and returns how many changed.
func (t *Timeline) MarkRead() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.messages {
		if !t.messages[i].IsRead {
			t.messages[i].IsRead = true
			n++
		}
	}
	return n
}

// Reset empties the timeline. Responses of loads already in flight are discarded.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.conversationID = ""
	t.messages = nil
	t.held = nil
	t.seen = make(map[string]struct{})
	t.state = Idle
}

// Snapshot returns a copy of the messages, oldest first.
func (t *Timeline) Snapshot() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Timeline) snapshotLocked() []model.Message {
	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Bursts groups the current messages with the timeline's policy.
func (t *Timeline) Bursts() []model.Burst {
	return Group(t.Snapshot(), t.policy)
}

// Find returns the message with the given clientMsgID.
func (t *Timeline) Find(clientMsgID string) (model.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.messages {
		if m.ClientMsgID == clientMsgID {
			return m, true
		}
	}
	return model.Message{}, false
}

// OldestMessageID is the pagination cursor. It is empty when the timeline is empty.
func (t *Timeline) OldestMessageID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return ""
	}
	return t.messages[0].ClientMsgID
}

func (t *Timeline) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timeline) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *Timeline) Exhausted() bool {
	return t.State() == Exhausted
}
