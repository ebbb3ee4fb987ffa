// Package rooms holds the room list, the selected room and the per-room
// metadata reconciled from conversations.
package rooms

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/model"
)

// RoomPatch carries the fields to overwrite on a room. Nil fields are left as
// they are.
type RoomPatch struct {
	ConversationID *string
	Name           *string
	Ex             *string
	Status         *model.RoomStatus
	CreateTime     *int64
	Members        *[]model.Member
	LastMessage    *model.Message
	UnreadCount    *int
	Typing         *bool
	TypingUserID   *string
}

// Directory is the ordered room list. New rooms are placed first.
type Directory struct {
	log *zap.Logger

	mu       sync.RWMutex
	rooms    []model.Room
	selected string
}

func New(log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{log: log}
}

// Upsert merges patch into the room with groupID, creating it when missing.
func (d *Directory) Upsert(groupID string, patch RoomPatch) model.Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexLocked(groupID)
	if i < 0 {
		d.rooms = append([]model.Room{{GroupID: groupID, Status: model.RoomOpen}}, d.rooms...)
		i = 0
	}
	r := &d.rooms[i]
	applyPatch(r, patch)
	return cloneRoom(*r)
}

func applyPatch(r *model.Room, p RoomPatch) {
	if p.ConversationID != nil {
		r.ConversationID = *p.ConversationID
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Ex != nil {
		r.Ex = *p.Ex
	}
	if p.Name != nil || p.Ex != nil || r.Symbol == "" {
		r.Symbol, r.BgColor = model.DecodeRoomExtension(r.Ex, r.Name, r.GroupID)
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.CreateTime != nil {
		r.CreateTime = *p.CreateTime
	}
	if p.Members != nil {
		r.Members = append([]model.Member(nil), (*p.Members)...)
		r.Emails = emailSummary(r.Members)
	}
	if p.LastMessage != nil {
		m := *p.LastMessage
		r.LastMessage = &m
	}
	if p.UnreadCount != nil {
		r.UnreadCount = *p.UnreadCount
	}
	if p.Typing != nil {
		r.Typing = *p.Typing
	}
	if p.TypingUserID != nil {
		r.TypingUserID = *p.TypingUserID
	}
}

func emailSummary(members []model.Member) string {
	emails := make([]string, 0, len(members))
	for _, m := range members {
		if m.Email != "" {
			emails = append(emails, m.Email)
		}
	}
	return strings.Join(emails, ", ")
}

// Replace swaps the whole room list, keeping the selection when the selected
// room is still present.
func (d *Directory) Replace(rooms []model.Room) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms = make([]model.Room, len(rooms))
	for i, r := range rooms {
		d.rooms[i] = cloneRoom(r)
		if d.rooms[i].Symbol == "" {
			d.rooms[i].Symbol, d.rooms[i].BgColor = model.DecodeRoomExtension(r.Ex, r.Name, r.GroupID)
		}
	}
	if d.indexLocked(d.selected) < 0 {
		d.selected = ""
	}
}

// Select marks groupID as the selected room.
func (d *Directory) Select(groupID string) (model.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexLocked(groupID)
	if i < 0 {
		return model.Room{}, model.ErrRoomNotFound
	}
	d.selected = groupID
	return cloneRoom(d.rooms[i]), nil
}

func (d *Directory) ClearSelection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = ""
}

// Selected returns the selected room.
func (d *Directory) Selected() (model.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i := d.indexLocked(d.selected)
	if i < 0 {
		return model.Room{}, false
	}
	return cloneRoom(d.rooms[i]), true
}

func (d *Directory) Get(groupID string) (model.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i := d.indexLocked(groupID)
	if i < 0 {
		return model.Room{}, false
	}
	return cloneRoom(d.rooms[i]), true
}

// FindByConversation looks a room up by its conversation id.
func (d *Directory) FindByConversation(conversationID string) (model.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.convIndexLocked(conversationID); i >= 0 {
		return cloneRoom(d.rooms[i]), true
	}
	return model.Room{}, false
}

// Reconcile attaches conversation metadata to rooms by group id and returns
// the number of rooms matched. Rooms without a conversation keep their
// state. A latest message that fails to decode keeps the previous one.
func (d *Directory) Reconcile(convs []model.Conversation) int {
	byGroup := make(map[string]model.Conversation, len(convs))
	for _, c := range convs {
		if c.GroupID != "" {
			byGroup[c.GroupID] = c
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	matched := 0
	for i := range d.rooms {
		r := &d.rooms[i]
		c, ok := byGroup[r.GroupID]
		if !ok {
			continue
		}
		matched++
		r.ConversationID = c.ConversationID
		r.UnreadCount = c.UnreadCount
		last, err := model.DecodeLatestMessage(c.LatestMsg)
		if err != nil {
			d.log.Warn("bad latest message",
				zap.String("group_id", r.GroupID),
				zap.Error(err),
			)
			continue
		}
		if last != nil {
			r.LastMessage = last
		}
	}
	return matched
}

// ApplyIncoming records m as the room's last message and, when countUnread
// is set, bumps its unread counter. It reports whether a room matched.
func (d *Directory) ApplyIncoming(m model.Message, countUnread bool) (model.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexLocked(m.GroupID)
	if i < 0 {
		i = d.convIndexLocked(m.ConversationID)
	}
	if i < 0 {
		return model.Room{}, false
	}
	r := &d.rooms[i]
	last := m
	r.LastMessage = &last
	if r.ConversationID == "" {
		r.ConversationID = m.ConversationID
	}
	if countUnread {
		r.UnreadCount++
	}
	return cloneRoom(*r), true
}

// MarkRead zeroes the unread counter of a room.
func (d *Directory) MarkRead(groupID string) bool {
	zero := 0
	return d.update(groupID, RoomPatch{UnreadCount: &zero})
}

// SetTyping sets the room-list typing indicator of the room owning conversationID.
func (d *Directory) SetTyping(conversationID string, typing bool, userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.convIndexLocked(conversationID)
	if i < 0 {
		return false
	}
	d.rooms[i].Typing = typing
	d.rooms[i].TypingUserID = userID
	if !typing {
		d.rooms[i].TypingUserID = ""
	}
	return true
}

func (d *Directory) SetMembers(groupID string, members []model.Member) bool {
	return d.update(groupID, RoomPatch{Members: &members})
}

func (d *Directory) SetStatus(groupID string, status model.RoomStatus) bool {
	return d.update(groupID, RoomPatch{Status: &status})
}

func (d *Directory) update(groupID string, p RoomPatch) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexLocked(groupID)
	if i < 0 {
		return false
	}
	applyPatch(&d.rooms[i], p)
	return true
}

// Rooms returns a copy of the room list in stored order.
func (d *Directory) Rooms() []model.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Room, len(d.rooms))
	for i, r := range d.rooms {
		out[i] = cloneRoom(r)
	}
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func (d *Directory) indexLocked(groupID string) int {
	if groupID == "" {
		return -1
	}
	for i := range d.rooms {
		if d.rooms[i].GroupID == groupID {
			return i
		}
	}
	return -1
}

func (d *Directory) convIndexLocked(conversationID string) int {
	if conversationID == "" {
		return -1
	}
	for i := range d.rooms {
		if d.rooms[i].ConversationID == conversationID {
			return i
		}
	}
	return -1
}

func cloneRoom(r model.Room) model.Room {
	if r.Members != nil {
		r.Members = append([]model.Member(nil), r.Members...)
	}
	if r.LastMessage != nil {
		m := *r.LastMessage
		r.LastMessage = &m
	}
	return r
}
