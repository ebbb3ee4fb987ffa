package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/store"
)

func conversationOf(r model.Room) string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	return model.GroupConversationID(r.GroupID)
}

func (c *Coordinator) selectedRoom() (model.Room, error) {
	r, ok := c.rooms.Selected()
	if !ok {
		return model.Room{}, model.ErrNoActiveRoom
	}
	return r, nil
}

// SelectRoom makes groupID the active room. The local typing focus and the
// remote indicator of the previously selected room are cleared, the newest
// history page is loaded and the conversation is marked read when it has
// unread messages.
func (c *Coordinator) SelectRoom(ctx context.Context, groupID string) (model.Room, error) {
	prev, hadPrev := c.rooms.Selected()
	room, err := c.rooms.Select(groupID)
	if err != nil {
		return model.Room{}, err
	}
	conv := conversationOf(room)
	log := c.logger.With(zap.String("group_id", groupID), zap.String("conversation_id", conv))

	if err := c.typing.ClearLocal(ctx); err != nil {
		log.Debug("failed to clear local typing", zap.Error(err))
	}
	if prevConv := conversationOf(prev); hadPrev && prevConv != conv {
		c.clearTyping(prevConv)
	}
	c.publishSelected()
	if c.db != nil {
		if err := c.db.SetCheckpoint(store.KeySelectedRoom, groupID); err != nil {
			log.Warn("failed to save selected room", zap.Error(err))
		}
	}

	_, err = c.timeline.InitialLoad(ctx, conv)
	c.publishTimeline()
	if err != nil {
		if err = c.logStale(err, "initial load"); err != nil {
			log.Warn("initial load failed", zap.Error(err))
		}
		return room, err
	}

	if room.UnreadCount > 0 {
		if err := c.msg.MarkConversationRead(ctx, conv); err != nil {
			log.Warn("failed to mark conversation read", zap.Error(err))
		} else {
			c.rooms.MarkRead(groupID)
			c.timeline.MarkRead()
			c.publishTimeline()
		}
	}
	c.publishRooms()
	room, _ = c.rooms.Get(groupID)
	return room, nil
}

func (c *Coordinator) clearTyping(conv string) {
	c.typing.Clear(conv)
	c.publish(KindViewTyping, model.TypingState{ConversationID: conv})
	if c.rooms.SetTyping(conv, false, "") {
		c.publishRooms()
	}
}

// LoadOlder loads the page before the oldest message of the active room and
// returns how many messages were added.
func (c *Coordinator) LoadOlder(ctx context.Context) (int, error) {
	if _, err := c.selectedRoom(); err != nil {
		return 0, err
	}
	n, err := c.timeline.LoadOlder(ctx)
	c.publishTimeline()
	return n, c.logStale(err, "load older")
}

// MarkRead marks the active conversation read.
func (c *Coordinator) MarkRead(ctx context.Context) error {
	room, err := c.selectedRoom()
	if err != nil {
		return err
	}
	if err := c.msg.MarkConversationRead(ctx, conversationOf(room)); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	c.rooms.MarkRead(room.GroupID)
	if c.timeline.MarkRead() > 0 {
		c.publishTimeline()
	}
	c.publishRooms()
	return nil
}

// AnnounceTyping signals that the local user is typing in the active room.
func (c *Coordinator) AnnounceTyping(ctx context.Context) error {
	room, err := c.selectedRoom()
	if err != nil {
		return err
	}
	return c.typing.AnnounceLocalTyping(ctx, conversationOf(room))
}

// SendText queues a text message for the active room and returns its client
// message id.
func (c *Coordinator) SendText(ctx context.Context, text string) (string, error) {
	return c.queue(ctx, model.Text, model.Content{Text: text})
}

// Reply queues a quote of quotedID, which must be in the active timeline.
func (c *Coordinator) Reply(ctx context.Context, quotedID, text string) (string, error) {
	quoted, ok := c.timeline.Find(quotedID)
	if !ok {
		return "", fmt.Errorf("quoted message %s: %w", quotedID, model.ErrMessageNotFound)
	}
	return c.queue(ctx, model.Quote, model.Content{
		Text:       text,
		QuotedID:   quoted.ClientMsgID,
		QuotedText: quoted.Preview(),
	})
}

// SendLocation queues a location message for the active room.
func (c *Coordinator) SendLocation(ctx context.Context, description string, lat, lng float64) (string, error) {
	return c.queue(ctx, model.Location, model.Content{Description: description, Latitude: lat, Longitude: lng})
}

// SendPicture queues a picture that was already uploaded to url.
func (c *Coordinator) SendPicture(ctx context.Context, url string, size int64) (string, error) {
	return c.queue(ctx, model.Picture, model.Content{URL: url, Size: size})
}

func (c *Coordinator) queue(_ context.Context, ct model.ContentType, content model.Content) (string, error) {
	room, err := c.selectedRoom()
	if err != nil {
		return "", err
	}
	if c.db == nil {
		return "", fmt.Errorf("queue %s: no outbox", ct)
	}
	entry := &store.OutboxEntry{
		ClientMsgID:    c.clock.ClientMsgID(),
		ConversationID: conversationOf(room),
		GroupID:        room.GroupID,
		ContentType:    ct,
		Content:        content,
		CorrelationID:  c.clock.CorrelationID(),
	}
	if err := c.db.QueueOutbox(entry); err != nil {
		return "", fmt.Errorf("queue outbox: %w", err)
	}
	c.logger.Debug("message queued",
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.String("content_type", string(ct)),
	)
	if c.outbox != nil {
		c.outbox.Kick()
	}
	return entry.ClientMsgID, nil
}

// Revoke recalls every message of the burst containing clientMsgID and
// returns how many were recalled. It stops at the first failure; messages
// recalled before it stay recalled.
func (c *Coordinator) Revoke(ctx context.Context, clientMsgID string) (int, error) {
	room, err := c.selectedRoom()
	if err != nil {
		return 0, err
	}
	var burst *model.Burst
	bursts := c.timeline.Bursts()
	for i := range bursts {
		for _, m := range bursts[i].Items {
			if m.ClientMsgID == clientMsgID {
				burst = &bursts[i]
			}
		}
	}
	if burst == nil {
		return 0, fmt.Errorf("revoke %s: %w", clientMsgID, model.ErrMessageNotFound)
	}

	conv := conversationOf(room)
	n := 0
	for _, m := range burst.Items {
		if m.ContentType == model.Revoke {
			continue
		}
		if err := c.msg.RevokeMessage(ctx, conv, m.ClientMsgID); err != nil {
			if n > 0 {
				c.publishTimeline()
			}
			return n, fmt.Errorf("revoke %s: %w", m.ClientMsgID, err)
		}
		c.timeline.Revoke(m.ClientMsgID)
		n++
	}
	if n > 0 {
		c.publishTimeline()
	}
	return n, nil
}

// SetRoomStatus sets the open/close workflow flag of a room.
func (c *Coordinator) SetRoomStatus(ctx context.Context, groupID string, st model.RoomStatus) error {
	if st != model.RoomOpen && st != model.RoomClose {
		return fmt.Errorf("invalid room status %q", st)
	}
	if _, ok := c.rooms.Get(groupID); !ok {
		return model.ErrRoomNotFound
	}
	if err := c.msg.SetGroupStatus(ctx, groupID, st); err != nil {
		return fmt.Errorf("set room status: %w", err)
	}
	c.rooms.SetStatus(groupID, st)
	c.persist()
	c.publishRooms()
	if sel, ok := c.rooms.Selected(); ok && sel.GroupID == groupID {
		c.publishSelected()
	}
	return nil
}

// MediaGallery pages through the whole history of a conversation and returns
// its pictures, videos and files, oldest first.
func (c *Coordinator) MediaGallery(ctx context.Context, conversationID string) ([]model.Message, error) {
	if conversationID == "" {
		room, err := c.selectedRoom()
		if err != nil {
			return nil, err
		}
		conversationID = conversationOf(room)
	}

	size := c.opts.GalleryPageSize
	seen := make(map[string]bool)
	var pages [][]model.Message
	cursor := ""
	for {
		page, err := c.msg.History(ctx, conversationID, cursor, size)
		if err != nil {
			return nil, &model.FetchError{Op: "media gallery", ConversationID: conversationID, Err: err}
		}
		fresh := make([]model.Message, 0, len(page))
		for _, m := range page {
			if m.ClientMsgID == "" || seen[m.ClientMsgID] {
				continue
			}
			seen[m.ClientMsgID] = true
			fresh = append(fresh, m)
		}
		pages = append(pages, fresh)
		if len(page) < size || len(fresh) == 0 {
			break
		}
		cursor = page[0].ClientMsgID
	}

	var media []model.Message
	for i := len(pages) - 1; i >= 0; i-- {
		for _, m := range pages[i] {
			if m.ContentType.IsMedia() {
				media = append(media, m)
			}
		}
	}
	return media, nil
}
