// Package typing tracks the local user's typing focus and the remote typing
// indicator of each conversation.
package typing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/model"
)

// DefaultDebounce collapses repeated local typing announcements.
const DefaultDebounce = 3 * time.Second

// InputSignaler tells the backend whether the local user is typing in a
// conversation.
type InputSignaler interface {
	ChangeInputStates(ctx context.Context, conversationID string, focus bool) error
}

// Tracker owns the local typing focus and the last remote typing state per
// conversation.
type Tracker struct {
	signal InputSignaler
	window time.Duration
	now    func() time.Time
	log    *zap.Logger

	mu       sync.Mutex
	focus    string
	lastSent time.Time
	remote   map[string]model.TypingState
}

// New creates a tracker. A non-positive window uses DefaultDebounce.
func New(signal InputSignaler, window time.Duration, log *zap.Logger) *Tracker {
	if window <= 0 {
		window = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		signal: signal,
		window: window,
		now:    time.Now,
		log:    log,
		remote: make(map[string]model.TypingState),
	}
}

// AnnounceLocalTyping signals that the local user is typing in
// conversationID. When focus moves from another conversation, that one is
// signalled as not typing first. Repeated announcements for the same
// conversation inside the debounce window are dropped.
func (t *Tracker) AnnounceLocalTyping(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return model.ErrNoActiveRoom
	}
	now := t.now()

	t.mu.Lock()
	prev := t.focus
	if prev == conversationID && !t.lastSent.IsZero() && now.Sub(t.lastSent) < t.window {
		t.mu.Unlock()
		return nil
	}
	t.focus = conversationID
	t.lastSent = now
	t.mu.Unlock()

	if prev != "" && prev != conversationID {
		if err := t.signal.ChangeInputStates(ctx, prev, false); err != nil {
			t.log.Warn("clear typing failed", zap.String("conversation_id", prev), zap.Error(err))
		}
	}
	if err := t.signal.ChangeInputStates(ctx, conversationID, true); err != nil {
		t.mu.Lock()
		if t.focus == conversationID {
			t.lastSent = time.Time{}
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// ClearLocal signals not-typing for the current focus and forgets it.
func (t *Tracker) ClearLocal(ctx context.Context) error {
	t.mu.Lock()
	prev := t.focus
	t.focus = ""
	t.lastSent = time.Time{}
	t.mu.Unlock()

	if prev == "" {
		return nil
	}
	return t.signal.ChangeInputStates(ctx, prev, false)
}

// Focus returns the conversation the local user last typed in.
func (t *Tracker) Focus() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focus
}

// OnRemoteTypingSignal records a remote typing signal. The last processed
// signal wins; a false signal or one without a user clears the indicator.
func (t *Tracker) OnRemoteTypingSignal(conversationID, userID string, isTyping bool) model.TypingState {
	st := model.TypingState{ConversationID: conversationID}
	if isTyping && userID != "" {
		st.IsTyping = true
		st.ByUserID = userID
	}

	t.mu.Lock()
	t.remote[conversationID] = st
	t.mu.Unlock()
	return st
}

// State returns the remote typing state of a conversation.
func (t *Tracker) State(conversationID string) model.TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.remote[conversationID]
	if !ok {
		return model.TypingState{ConversationID: conversationID}
	}
	return st
}

// Clear drops the remote typing state of a conversation.
func (t *Tracker) Clear(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.remote, conversationID)
}
