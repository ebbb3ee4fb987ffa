package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/idgen"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/status"
	"github.com/matheus3301/imsync/internal/transport"
)

type methodHandler func(data json.RawMessage) (out any, errCode int)

// fakeGateway is a websocket server speaking the gateway envelope protocol.
type fakeGateway struct {
	t        *testing.T
	srv      *httptest.Server
	handlers map[string]methodHandler

	mu        sync.Mutex
	conn      *websocket.Conn
	query     url.Values
	requests  []envelope
	connected chan struct{}
}

func newFakeGateway(t *testing.T, handlers map[string]methodHandler) *fakeGateway {
	t.Helper()
	g := &fakeGateway{t: t, handlers: handlers, connected: make(chan struct{}, 4)}
	g.srv = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.conn = conn
	g.query = r.URL.Query()
	g.mu.Unlock()
	g.connected <- struct{}{}

	ctx := r.Context()
	for {
		var req envelope
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return
		}
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()

		resp := envelope{Type: typeResponse, OperationID: req.OperationID}
		h, ok := g.handlers[req.Method]
		if !ok {
			resp.ErrCode, resp.ErrMsg = 404, "unknown method"
		} else {
			out, code := h(req.Data)
			resp.ErrCode = code
			if code != 0 {
				resp.ErrMsg = "failed"
			}
			if out != nil {
				resp.Data, _ = json.Marshal(out)
			}
		}
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			return
		}
	}
}

func (g *fakeGateway) push(event string, data any) {
	g.t.Helper()
	raw, _ := json.Marshal(data)
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if err := wsjson.Write(context.Background(), conn, envelope{Type: typeEvent, Event: event, Data: raw}); err != nil {
		g.t.Fatalf("push %s: %v", event, err)
	}
}

func (g *fakeGateway) closeConn(code websocket.StatusCode) {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	_ = conn.Close(code, "server closing")
}

func (g *fakeGateway) lastRequest() envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type harness struct {
	client  *Client
	bus     *bus.Bus
	machine *status.Machine
}

func connect(t *testing.T, g *fakeGateway) harness {
	t.Helper()
	b := bus.New()
	m := status.NewMachine(b)
	logger := zap.NewNop()
	c := NewClient(Options{
		Addr:           g.url(),
		UserID:         "me",
		Token:          "tok",
		PlatformID:     5,
		RequestTimeout: 2 * time.Second,
	}, idgen.New(), m, NewEventHandler(b, m, logger), logger)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	<-g.connected
	return harness{client: c, bus: b, machine: m}
}

func TestConnectSendsCredentials(t *testing.T) {
	g := newFakeGateway(t, nil)
	h := connect(t, g)

	if h.machine.Current() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", h.machine.Current())
	}
	g.mu.Lock()
	q := g.query
	g.mu.Unlock()
	if q.Get("sendID") != "me" || q.Get("token") != "tok" || q.Get("platformID") != "5" {
		t.Errorf("query = %v", q)
	}
	if q.Get("operationID") == "" {
		t.Error("missing operationID")
	}
}

func TestHistoryFiltersHiddenRecords(t *testing.T) {
	g := newFakeGateway(t, map[string]methodHandler{
		methodHistory: func(data json.RawMessage) (any, int) {
			return historyResp{MessageList: []model.WireMessage{
				{ClientMsgID: "sys", ContentType: 1501},
				{ClientMsgID: "a", SendID: "u1", ContentType: 101, TextElem: &model.TextElem{Content: "hi"}},
				{ClientMsgID: "cust", ContentType: 110},
				{ClientMsgID: "b", SendID: "u2", ContentType: 102, Ex: `{"albumId":"al"}`},
			}}, 0
		},
	})
	h := connect(t, g)

	msgs, err := h.client.History(context.Background(), "sg_g1", "cursor", 40)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ClientMsgID != "a" || msgs[1].ClientMsgID != "b" {
		t.Fatalf("msgs = %+v", msgs)
	}
	if msgs[0].ConversationID != "sg_g1" {
		t.Errorf("ConversationID = %q, want sg_g1", msgs[0].ConversationID)
	}
	if msgs[1].CorrelationID != "al" {
		t.Errorf("CorrelationID = %q, want al", msgs[1].CorrelationID)
	}

	var req historyReq
	_ = json.Unmarshal(g.lastRequest().Data, &req)
	if req.ConversationID != "sg_g1" || req.StartClientMsgID != "cursor" || req.Count != 40 {
		t.Errorf("request = %+v", req)
	}
}

func TestCallReturnsGatewayError(t *testing.T) {
	g := newFakeGateway(t, map[string]methodHandler{
		methodMarkRead: func(json.RawMessage) (any, int) { return nil, 1004 },
	})
	h := connect(t, g)

	err := h.client.MarkConversationRead(context.Background(), "sg_g1")
	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.Code != 1004 || gwErr.Method != methodMarkRead {
		t.Errorf("err = %v, want gateway error 1004", err)
	}
}

func TestCallWithoutConnection(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	c := NewClient(Options{Addr: "ws://127.0.0.1:1"}, idgen.New(), m, NewEventHandler(b, m, zap.NewNop()), zap.NewNop())
	if _, err := c.Conversations(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestConnectFailure(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	c := NewClient(Options{Addr: "ws://127.0.0.1:1/ws"}, idgen.New(), m, NewEventHandler(b, m, zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("expected dial error")
	}
	if m.Current() != status.ConnectFailed {
		t.Errorf("state = %s, want CONNECT_FAILED", m.Current())
	}
}

func TestSendMessageEncodesCorrelation(t *testing.T) {
	var (
		mu  sync.Mutex
		got sendReq
	)
	g := newFakeGateway(t, map[string]methodHandler{
		methodSendMessage: func(data json.RawMessage) (any, int) {
			mu.Lock()
			defer mu.Unlock()
			_ = json.Unmarshal(data, &got)
			echo := got.Message
			echo.ServerMsgID = "srv-1"
			return echo, 0
		},
	})
	h := connect(t, g)

	msg, err := h.client.SendMessage(context.Background(), transport.SendRequest{
		ClientMsgID:   "c1",
		GroupID:       "g1",
		ContentType:   model.Picture,
		Content:       model.Content{URL: "https://x/p.png"},
		CorrelationID: "r1",
	})
	if err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.GroupID != "g1" || got.Message.ContentType != 102 || got.Message.SendID != "me" {
		t.Errorf("request = %+v", got)
	}
	if got.Message.Ex != `{"requestId":"r1","albumId":"r1"}` {
		t.Errorf("ex = %q", got.Message.Ex)
	}
	if msg.ServerMsgID != "srv-1" || msg.CorrelationID != "r1" || msg.ConversationID != "sg_g1" {
		t.Errorf("confirmed = %+v", msg)
	}
}

func TestGroupMembersPages(t *testing.T) {
	var calls atomic.Int32
	g := newFakeGateway(t, map[string]methodHandler{
		methodGroupMembers: func(data json.RawMessage) (any, int) {
			calls.Add(1)
			var req groupMembersReq
			_ = json.Unmarshal(data, &req)
			n := memberPageSize
			if req.Offset > 0 {
				n = 3
			}
			page := make([]wireMember, n)
			for i := range page {
				page[i] = wireMember{UserID: "u"}
			}
			return page, 0
		},
	})
	h := connect(t, g)

	members, err := h.client.GroupMembers(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != memberPageSize+3 || calls.Load() != 2 {
		t.Errorf("members = %d, calls = %d", len(members), calls.Load())
	}
	if members[0].Role != model.RoleCustomer {
		t.Errorf("default role = %q, want customer", members[0].Role)
	}
}

func TestJoinedGroupsMapsStatus(t *testing.T) {
	g := newFakeGateway(t, map[string]methodHandler{
		methodJoinedGroups: func(json.RawMessage) (any, int) {
			return []wireGroup{
				{GroupID: "g1", GroupName: "Sales", Introduction: "close", CreateTime: 5},
				{GroupID: "g2", GroupName: "Ops", Ex: `{"symbol":"OP","bgColor":"#000"}`},
			}, 0
		},
	})
	h := connect(t, g)

	rooms, err := h.client.JoinedGroups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rooms[0].Status != model.RoomClose || rooms[0].Symbol != "Sa" || rooms[0].ConversationID != "sg_g1" {
		t.Errorf("g1 = %+v", rooms[0])
	}
	if rooms[1].Status != model.RoomOpen || rooms[1].Symbol != "OP" || rooms[1].BgColor != "#000" {
		t.Errorf("g2 = %+v", rooms[1])
	}
}

func TestPushedEventsReachBus(t *testing.T) {
	g := newFakeGateway(t, nil)
	h := connect(t, g)
	ch, unsub := h.bus.Subscribe("im.", 16)
	defer unsub()

	g.push(eventNewMessages, []model.WireMessage{
		{ClientMsgID: "m1", GroupID: "g1", SendID: "u1", ContentType: 101, TextElem: &model.TextElem{Content: "yo"}},
		{ClientMsgID: "hidden", GroupID: "g1", ContentType: 110},
	})
	evt := waitKind(t, ch, transport.KindNewMessages)
	nm := evt.Payload.(transport.NewMessages)
	if len(nm.Messages) != 1 || nm.Messages[0].ConversationID != "sg_g1" {
		t.Errorf("new messages = %+v", nm.Messages)
	}

	g.push(eventInputStatusChange, inputStatusEvent{ConversationID: "sg_g1", UserID: "u1", PlatformIDs: []int{5}})
	evt = waitKind(t, ch, transport.KindInputStatus)
	if in := evt.Payload.(transport.InputStatus); !in.Typing || in.UserID != "u1" {
		t.Errorf("input status = %+v", in)
	}
	g.push(eventInputStatusChange, inputStatusEvent{ConversationID: "sg_g1", UserID: "u1"})
	evt = waitKind(t, ch, transport.KindInputStatus)
	if in := evt.Payload.(transport.InputStatus); in.Typing {
		t.Errorf("empty platform list should mean not typing: %+v", in)
	}

	g.push(eventJoinedGroupAdded, wireGroup{GroupID: "g9", GroupName: "New"})
	evt = waitKind(t, ch, transport.KindGroupJoined)
	if gj := evt.Payload.(transport.GroupJoined); gj.Room.GroupID != "g9" {
		t.Errorf("group joined = %+v", gj)
	}
}

func TestKickedOffline(t *testing.T) {
	g := newFakeGateway(t, nil)
	h := connect(t, g)

	g.push(eventKickedOffline, nil)
	g.closeConn(websocket.StatusPolicyViolation)

	waitState(t, h.machine, status.KickedOffline)
	if !h.client.Kicked() {
		t.Error("Kicked() = false")
	}
	time.Sleep(50 * time.Millisecond)
	if h.machine.Current() != status.KickedOffline {
		t.Errorf("state = %s, want KICKED_OFFLINE to stick", h.machine.Current())
	}
}

func TestServerCloseFailsPendingRequests(t *testing.T) {
	release := make(chan struct{})
	g := newFakeGateway(t, map[string]methodHandler{
		methodConversations: func(json.RawMessage) (any, int) {
			<-release
			return nil, 0
		},
	})
	h := connect(t, g)

	errc := make(chan error, 1)
	go func() {
		_, err := h.client.Conversations(context.Background())
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	g.closeConn(websocket.StatusGoingAway)
	close(release)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("err = %v, want ErrNotConnected", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pending request never returned")
	}
	waitState(t, h.machine, status.Disconnected)
}

func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func waitState(t *testing.T, m *status.Machine, want status.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Current() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", m.Current(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
