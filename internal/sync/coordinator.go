// Package sync is the single owner of the live event stream. It routes
// gateway events and send results to the room directory, the timeline of the
// active conversation and the typing tracker, and publishes the consolidated
// state as retained view events.
package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/idgen"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/outbox"
	"github.com/matheus3301/imsync/internal/rooms"
	"github.com/matheus3301/imsync/internal/status"
	"github.com/matheus3301/imsync/internal/store"
	"github.com/matheus3301/imsync/internal/timeline"
	"github.com/matheus3301/imsync/internal/transport"
	"github.com/matheus3301/imsync/internal/typing"
)

// Defaults for Options.
const (
	DefaultGalleryPageSize = 100
	DefaultEnrichWorkers   = 4
)

// Options tunes the coordinator.
type Options struct {
	// UserID is the local account. Its messages never count as unread.
	UserID string
	// AdminUserID is removed from member lists.
	AdminUserID     string
	PageSize        int
	GalleryPageSize int
	Grouping        timeline.Policy
	TypingDebounce  time.Duration
	EnrichWorkers   int
}

// Kicker wakes the outbox sender after a message is queued.
type Kicker interface {
	Kick()
}

// Deps are the collaborators of a Coordinator. Profiles, DB and Outbox are
// optional.
type Deps struct {
	Messaging transport.Messaging
	Profiles  transport.Profiles
	DB        *store.DB
	Bus       *bus.Bus
	Machine   *status.Machine
	Clock     *idgen.Clock
	Outbox    Kicker
	Logger    *zap.Logger
}

// Coordinator reconciles live events, history pages and user actions into
// one view per conversation plus the room list.
type Coordinator struct {
	opts     Options
	msg      transport.Messaging
	profiles transport.Profiles
	db       *store.DB
	bus      *bus.Bus
	machine  *status.Machine
	clock    *idgen.Clock
	outbox   Kicker
	logger   *zap.Logger

	rooms    *rooms.Directory
	timeline *timeline.Timeline
	typing   *typing.Tracker

	bootstrapping atomic.Bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// New creates a coordinator. It does nothing until Start.
func New(deps Deps, opts Options) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GalleryPageSize <= 0 {
		opts.GalleryPageSize = DefaultGalleryPageSize
	}
	if opts.EnrichWorkers <= 0 {
		opts.EnrichWorkers = DefaultEnrichWorkers
	}
	if opts.Grouping == "" {
		opts.Grouping = timeline.PolicyStrict
	}
	clock := deps.Clock
	if clock == nil {
		clock = idgen.New()
	}
	machine := deps.Machine
	if machine == nil {
		machine = status.NewMachine(deps.Bus)
	}
	return &Coordinator{
		opts:     opts,
		msg:      deps.Messaging,
		profiles: deps.Profiles,
		db:       deps.DB,
		bus:      deps.Bus,
		machine:  machine,
		clock:    clock,
		outbox:   deps.Outbox,
		logger:   logger,
		rooms:    rooms.New(logger.Named("rooms")),
		timeline: timeline.New(deps.Messaging, opts.PageSize, opts.Grouping, logger.Named("timeline")),
		typing:   typing.New(deps.Messaging, opts.TypingDebounce, logger.Named("typing")),
	}
}

// Start restores the cached room list and subscribes to gateway events and
// send results. A connection that is, or becomes, established triggers
// Bootstrap.
func (c *Coordinator) Start(ctx context.Context) {
	c.warmStart()

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	// Replay picks up the retained connection state.
	imCh, unsubIM := c.bus.SubscribeReplay("im.", 256)
	outCh, unsubOut := c.bus.Subscribe("outbox.", 64)

	go func() {
		defer close(c.done)
		defer unsubIM()
		defer unsubOut()
		for {
			select {
			case evt := <-imCh:
				c.handleEvent(ctx, evt)
			case evt := <-outCh:
				c.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops event processing and waits for the loop to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, evt bus.Event) {
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		c.onConnection(ctx, p)
	case transport.NewMessages:
		c.onNewMessages(p.Messages)
	case transport.GroupJoined:
		c.onGroupJoined(ctx, p.Room)
	case transport.InputStatus:
		c.onInputStatus(p)
	case outbox.Sent:
		c.RecordSent(p.Message)
	case outbox.Failed:
		c.logger.Warn("send failed",
			zap.String("client_msg_id", p.ClientMsgID),
			zap.String("conversation_id", p.ConversationID),
			zap.String("error", p.Err),
		)
		c.bus.Publish(bus.Event{
			Kind:      KindViewSendFailed,
			Timestamp: time.Now(),
			Payload:   SendFailedView(p),
		})
	default:
		c.logger.Debug("ignoring event", zap.String("kind", evt.Kind))
	}
}

func (c *Coordinator) onConnection(ctx context.Context, change status.StatusChange) {
	c.publish(KindViewConnection, change)
	if change.To != status.Connected {
		return
	}
	if !c.bootstrapping.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.bootstrapping.Store(false)
		if err := c.Bootstrap(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("bootstrap failed", zap.Error(err))
		}
	}()
}

// belongsToSelected matches by group id, or by conversation id when the
// message carries no group.
func belongsToSelected(sel model.Room, m model.Message) bool {
	if m.GroupID != "" {
		return m.GroupID == sel.GroupID
	}
	return m.ConversationID != "" && m.ConversationID == sel.ConversationID
}

func (c *Coordinator) onNewMessages(msgs []model.Message) {
	sel, hasSel := c.rooms.Selected()
	timelineChanged := false
	for _, m := range msgs {
		current := hasSel && belongsToSelected(sel, m)
		if current {
			if m.ContentType == model.Revoke && c.timeline.Revoke(m.ClientMsgID) {
				timelineChanged = true
			} else if c.timeline.Ingest(m) {
				timelineChanged = true
			}
		}
		countUnread := !current && m.SendID != c.opts.UserID
		if _, ok := c.rooms.ApplyIncoming(m, countUnread); !ok {
			c.logger.Debug("message for unknown room",
				zap.String("group_id", m.GroupID),
				zap.String("conversation_id", m.ConversationID),
			)
		}
	}
	c.publishRooms()
	if timelineChanged {
		c.publishTimeline()
	}
}

func (c *Coordinator) onGroupJoined(ctx context.Context, r model.Room) {
	conv := r.ConversationID
	if conv == "" {
		conv = model.GroupConversationID(r.GroupID)
	}
	c.rooms.Upsert(r.GroupID, rooms.RoomPatch{
		ConversationID: &conv,
		Name:           &r.Name,
		Ex:             &r.Ex,
		Status:         &r.Status,
		CreateTime:     &r.CreateTime,
	})
	c.logger.Info("joined room", zap.String("group_id", r.GroupID), zap.String("name", r.Name))
	c.publishRooms()

	go func() {
		if err := c.enrich(ctx, []string{r.GroupID}); err != nil {
			c.logger.Warn("member enrichment failed", zap.String("group_id", r.GroupID), zap.Error(err))
			return
		}
		c.publishRooms()
	}()
}

func (c *Coordinator) onInputStatus(in transport.InputStatus) {
	if in.UserID != "" && in.UserID == c.opts.UserID {
		return
	}
	st := c.typing.OnRemoteTypingSignal(in.ConversationID, in.UserID, in.Typing)
	c.publish(KindViewTyping, st)
	if c.rooms.SetTyping(in.ConversationID, st.IsTyping, st.ByUserID) {
		c.publishRooms()
	}
}

// RecordSent applies a confirmed send to the timeline, when the message
// belongs to the active room, and to the room's last message.
func (c *Coordinator) RecordSent(m model.Message) {
	if sel, ok := c.rooms.Selected(); ok && belongsToSelected(sel, m) {
		if c.timeline.RecordOutcome([]model.Message{m}) > 0 {
			c.publishTimeline()
		}
	}
	if _, ok := c.rooms.ApplyIncoming(m, false); ok {
		c.publishRooms()
	}
}

// logStale swallows stale responses. It returns err unchanged otherwise.
func (c *Coordinator) logStale(err error, op string) error {
	if errors.Is(err, model.ErrStaleResponse) {
		c.logger.Debug("discarded stale response", zap.String("op", op))
		return nil
	}
	return err
}
