package sync

import (
	"time"

	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/rooms"
	"github.com/matheus3301/imsync/internal/status"
	"github.com/matheus3301/imsync/internal/timeline"
)

// View event kinds. All but KindViewSendFailed are retained on the bus, so a
// late subscriber starts from the current state.
const (
	KindViewRooms      = "view.rooms"
	KindViewSelected   = "view.selected"
	KindViewTimeline   = "view.timeline"
	KindViewTyping     = "view.typing"
	KindViewConnection = "view.connection"
	KindViewSendFailed = "view.send_failed"
)

// RoomsView is the payload of KindViewRooms, in directory order.
type RoomsView struct {
	Rooms []model.Room
}

// TimelineView is the payload of KindViewTimeline.
type TimelineView struct {
	ConversationID string
	State          timeline.State
	Count          int
	Bursts         []model.Burst
}

// SendFailedView is the payload of KindViewSendFailed.
type SendFailedView struct {
	ClientMsgID    string
	ConversationID string
	Err            string
}

// Connection returns the current connection state.
func (c *Coordinator) Connection() status.State {
	return c.machine.Current()
}

// Rooms returns the room list projected through opts.
func (c *Coordinator) Rooms(opts rooms.ViewOptions) []model.Room {
	return c.rooms.View(opts)
}

// Room returns one room by group id.
func (c *Coordinator) Room(groupID string) (model.Room, bool) {
	return c.rooms.Get(groupID)
}

// Selected returns the active room.
func (c *Coordinator) Selected() (model.Room, bool) {
	return c.rooms.Selected()
}

// Timeline returns the grouped timeline of the active conversation.
func (c *Coordinator) Timeline() TimelineView {
	return TimelineView{
		ConversationID: c.timeline.ConversationID(),
		State:          c.timeline.State(),
		Count:          c.timeline.Len(),
		Bursts:         c.timeline.Bursts(),
	}
}

// Typing returns the remote typing state of a conversation.
func (c *Coordinator) Typing(conversationID string) model.TypingState {
	return c.typing.State(conversationID)
}

func (c *Coordinator) publish(kind string, payload any) {
	c.bus.PublishRetained(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func (c *Coordinator) publishRooms() {
	c.publish(KindViewRooms, RoomsView{Rooms: c.rooms.Rooms()})
}

func (c *Coordinator) publishSelected() {
	if r, ok := c.rooms.Selected(); ok {
		c.publish(KindViewSelected, r)
	}
}

func (c *Coordinator) publishTimeline() {
	c.publish(KindViewTimeline, c.Timeline())
}
