package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/rooms"
	"github.com/matheus3301/imsync/internal/status"
	intsync "github.com/matheus3301/imsync/internal/sync"
	"github.com/matheus3301/imsync/internal/timeline"
)

type fakeEngine struct {
	mu       sync.Mutex
	rooms    []model.Room
	selected string
	sent     []string
	statuses map[string]model.RoomStatus
	typed    int
	err      error
}

func (f *fakeEngine) Connection() status.State { return status.Connected }

func (f *fakeEngine) Rooms(opts rooms.ViewOptions) []model.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rooms.Project(f.rooms, opts)
}

func (f *fakeEngine) Selected() (model.Room, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.GroupID == f.selected {
			return r, true
		}
	}
	return model.Room{}, false
}

func (f *fakeEngine) Timeline() intsync.TimelineView {
	msgs := []model.Message{
		{ClientMsgID: "m1", SendID: "u1", SendTime: 1, ContentType: model.Text, Content: model.Content{Text: "hi"}},
		{ClientMsgID: "m2", SendID: "u2", SendTime: 2, ContentType: model.Picture, Content: model.Content{URL: "https://x/p.png"}},
	}
	return intsync.TimelineView{
		ConversationID: "sg_g1",
		State:          timeline.Idle,
		Count:          len(msgs),
		Bursts:         timeline.Group(msgs, timeline.PolicyStrict),
	}
}

func (f *fakeEngine) SelectRoom(_ context.Context, groupID string) (model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.GroupID == groupID {
			f.selected = groupID
			return r, nil
		}
	}
	return model.Room{}, model.ErrRoomNotFound
}

func (f *fakeEngine) LoadOlder(context.Context) (int, error) {
	return 0, &model.FetchError{Op: "load older", Err: errors.New("timeout")}
}

func (f *fakeEngine) SendText(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == "" {
		return "", model.ErrNoActiveRoom
	}
	f.sent = append(f.sent, text)
	return "c1", nil
}

func (f *fakeEngine) Reply(_ context.Context, quotedID, text string) (string, error) {
	if quotedID != "m1" {
		return "", model.ErrMessageNotFound
	}
	return "c2", nil
}

func (f *fakeEngine) SendLocation(context.Context, string, float64, float64) (string, error) {
	return "c3", nil
}

func (f *fakeEngine) Revoke(_ context.Context, id string) (int, error) {
	if id == "m1" {
		return 2, nil
	}
	return 0, model.ErrMessageNotFound
}

func (f *fakeEngine) MarkRead(context.Context) error { return f.err }

func (f *fakeEngine) SetRoomStatus(_ context.Context, groupID string, st model.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[groupID] = st
	return nil
}

func (f *fakeEngine) AnnounceTyping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed++
	return nil
}

func (f *fakeEngine) MediaGallery(context.Context, string) ([]model.Message, error) {
	return []model.Message{{ClientMsgID: "p1", ContentType: model.Picture}}, nil
}

func startServer(t *testing.T, engine Engine, b *bus.Bus) *Client {
	t.Helper()
	// Short path: Unix socket paths are limited to ~104 bytes on macOS.
	dir, err := os.MkdirTemp("/tmp", "imsync-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "d.sock")

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	RegisterSyncServer(srv, NewService("test", engine, b, zap.NewNop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		rooms: []model.Room{
			{GroupID: "g1", ConversationID: "sg_g1", Name: "Zeta", Status: model.RoomOpen, CreateTime: 100,
				Members: []model.Member{{UserID: "u1", Role: model.RoleSale, Online: true}}},
			{GroupID: "g2", ConversationID: "sg_g2", Name: "alpha", Status: model.RoomClose, CreateTime: 200},
		},
		statuses: make(map[string]model.RoomStatus),
	}
}

func code(err error) codes.Code {
	return grpcstatus.Code(err)
}

func TestGetStatus(t *testing.T) {
	c := startServer(t, newFakeEngine(), bus.New())

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Session != "test" || st.Connection != string(status.Connected) || st.Rooms != 2 {
		t.Errorf("status = %+v", st)
	}
	if st.SelectedGroupID != "" {
		t.Errorf("selected = %q, want none", st.SelectedGroupID)
	}
}

func TestListRooms(t *testing.T) {
	c := startServer(t, newFakeEngine(), bus.New())
	ctx := context.Background()

	all, err := c.ListRooms(ctx, ListRoomsRequest{Sort: "alphaAZ"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "alpha" || all[1].Name != "Zeta" {
		t.Errorf("rooms = %+v", all)
	}
	if m := all[1].Members; len(m) != 1 || m[0].Role != "sale" || !m[0].Online {
		t.Errorf("members = %+v", m)
	}

	closed, err := c.ListRooms(ctx, ListRoomsRequest{Category: "close"})
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 || closed[0].GroupID != "g2" {
		t.Errorf("closed = %+v", closed)
	}

	if _, err := c.ListRooms(ctx, ListRoomsRequest{Sort: "random"}); code(err) != codes.InvalidArgument {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}

func TestSelectRoomAndTimeline(t *testing.T) {
	c := startServer(t, newFakeEngine(), bus.New())
	ctx := context.Background()

	resp, err := c.SelectRoom(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Room.GroupID != "g1" || resp.Timeline.Count != 2 || len(resp.Timeline.Bursts) != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if got := resp.Timeline.Bursts[1].Items[0]; got.ContentType != "picture" || got.Content.URL != "https://x/p.png" {
		t.Errorf("picture = %+v", got)
	}
	if got := resp.Timeline.Bursts[0].Items[0].Preview; got != "hi" {
		t.Errorf("preview = %q", got)
	}

	if _, err := c.SelectRoom(ctx, "missing"); code(err) != codes.NotFound {
		t.Errorf("err = %v, want NotFound", err)
	}
	if _, err := c.SelectRoom(ctx, ""); code(err) != codes.InvalidArgument {
		t.Errorf("err = %v, want InvalidArgument", err)
	}

	tl, err := c.Timeline(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tl.State != string(timeline.Idle) || tl.ConversationID != "sg_g1" {
		t.Errorf("timeline = %+v", tl)
	}
}

func TestErrorCodes(t *testing.T) {
	f := newFakeEngine()
	f.err = context.DeadlineExceeded
	c := startServer(t, f, bus.New())
	ctx := context.Background()

	if _, err := c.SendText(ctx, "hi", ""); code(err) != codes.FailedPrecondition {
		t.Errorf("send without room: %v, want FailedPrecondition", err)
	}
	if _, err := c.LoadOlder(ctx); code(err) != codes.Unavailable {
		t.Errorf("load older: %v, want Unavailable", err)
	}
	if err := c.MarkRead(ctx); code(err) != codes.DeadlineExceeded {
		t.Errorf("mark read: %v, want DeadlineExceeded", err)
	}
	if _, err := c.SendText(ctx, "", ""); code(err) != codes.InvalidArgument {
		t.Errorf("empty text: %v, want InvalidArgument", err)
	}
	if err := c.SetRoomStatus(ctx, "g1", "archived"); code(err) != codes.InvalidArgument {
		t.Errorf("bad status: %v, want InvalidArgument", err)
	}
}

func TestActions(t *testing.T) {
	f := newFakeEngine()
	c := startServer(t, f, bus.New())
	ctx := context.Background()

	if _, err := c.SelectRoom(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	if id, err := c.SendText(ctx, "hello", ""); err != nil || id != "c1" {
		t.Errorf("SendText = %q, %v", id, err)
	}
	if id, err := c.SendText(ctx, "re", "m1"); err != nil || id != "c2" {
		t.Errorf("reply = %q, %v", id, err)
	}
	if id, err := c.SendLocation(ctx, SendLocationRequest{Description: "HQ", Latitude: 1.5, Longitude: 2}); err != nil || id != "c3" {
		t.Errorf("SendLocation = %q, %v", id, err)
	}
	if n, err := c.Revoke(ctx, "m1"); err != nil || n != 2 {
		t.Errorf("Revoke = %d, %v", n, err)
	}
	if _, err := c.Revoke(ctx, "zz"); code(err) != codes.NotFound {
		t.Errorf("revoke missing: %v", err)
	}
	if err := c.SetRoomStatus(ctx, "g1", "close"); err != nil {
		t.Fatal(err)
	}
	if err := c.AnnounceTyping(ctx); err != nil {
		t.Fatal(err)
	}
	media, err := c.MediaGallery(ctx, "")
	if err != nil || len(media) != 1 || media[0].ClientMsgID != "p1" {
		t.Errorf("MediaGallery = %+v, %v", media, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) != 1 || f.sent[0] != "hello" {
		t.Errorf("sent = %v", f.sent)
	}
	if f.statuses["g1"] != model.RoomClose || f.typed != 1 {
		t.Errorf("statuses = %v typed = %d", f.statuses, f.typed)
	}
}

func TestWatchEventsReplaysRetainedState(t *testing.T) {
	b := bus.New()
	b.PublishRetained(bus.Event{Kind: intsync.KindViewRooms, Timestamp: time.Now(), Payload: intsync.RoomsView{
		Rooms: []model.Room{{GroupID: "g1", Name: "Zeta"}},
	}})
	c := startServer(t, newFakeEngine(), b)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan Event, 4)
	go func() {
		_ = c.WatchEvents(ctx, "view.", func(evt Event) error {
			select {
			case got <- evt:
			case <-ctx.Done():
			}
			return nil
		})
	}()

	select {
	case evt := <-got:
		if evt.Kind != intsync.KindViewRooms || evt.Session != "test" || evt.EventID == "" {
			t.Errorf("event = %+v", evt)
		}
		var list ListRoomsResponse
		if err := json.Unmarshal(evt.Payload, &list); err != nil {
			t.Fatal(err)
		}
		if len(list.Rooms) != 1 || list.Rooms[0].Name != "Zeta" {
			t.Errorf("payload = %s", evt.Payload)
		}
	case <-ctx.Done():
		t.Fatal("no replayed event")
	}

	// Live events follow the replay.
	go func() {
		for i := 0; i < 50 && ctx.Err() == nil; i++ {
			b.PublishRetained(bus.Event{Kind: intsync.KindViewTyping, Timestamp: time.Now(), Payload: model.TypingState{
				ConversationID: "sg_g1", IsTyping: true, ByUserID: "u1",
			}})
			time.Sleep(20 * time.Millisecond)
		}
	}()
	select {
	case evt := <-got:
		var typing Typing
		if err := json.Unmarshal(evt.Payload, &typing); err != nil {
			t.Fatal(err)
		}
		if evt.Kind != intsync.KindViewTyping || !typing.IsTyping || typing.ByUserID != "u1" {
			t.Errorf("event = %+v payload = %s", evt, evt.Payload)
		}
	case <-ctx.Done():
		t.Fatal("no live event")
	}
}

func TestEncodePayloadRejectsUnknownTypes(t *testing.T) {
	if _, err := encodePayload(struct{}{}); err == nil {
		t.Error("expected error for unsupported payload")
	}
	b, err := encodePayload(status.StatusChange{From: status.Connecting, To: status.Connected})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"from":"CONNECTING","to":"CONNECTED"}` {
		t.Errorf("payload = %s", b)
	}
}
