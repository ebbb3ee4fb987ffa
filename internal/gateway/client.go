// Package gateway implements the messaging transport over the gateway's
// websocket JSON protocol.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/idgen"
	"github.com/matheus3301/imsync/internal/status"
	"github.com/matheus3301/imsync/internal/transport"
)

// ErrNotConnected is returned by requests issued while the link is down.
var ErrNotConnected = transport.ErrNotConnected

// Error is a non-zero errCode returned by the gateway.
type Error struct {
	Method string
	Code   int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: errCode=%d %s", e.Method, e.Code, e.Msg)
}

// Options configure a Client.
type Options struct {
	Addr           string
	UserID         string
	Token          string
	PlatformID     int
	RequestTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
}

// Client is a websocket connection to the gateway. Requests are correlated
// with responses by operation id; pushed events go to the EventHandler.
type Client struct {
	opts    Options
	clock   *idgen.Clock
	machine *status.Machine
	handler *EventHandler
	logger  *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	pending map[string]chan envelope
	kicked  bool
}

// NewClient creates a client. It does not connect.
func NewClient(opts Options, clock *idgen.Clock, machine *status.Machine, handler *EventHandler, logger *zap.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Client{
		opts:    opts,
		clock:   clock,
		machine: machine,
		handler: handler,
		logger:  logger,
		pending: make(map[string]chan envelope),
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.opts.Addr)
	if err != nil {
		return "", fmt.Errorf("parse gateway addr: %w", err)
	}
	q := u.Query()
	q.Set("sendID", c.opts.UserID)
	q.Set("token", c.opts.Token)
	q.Set("platformID", strconv.Itoa(c.opts.PlatformID))
	q.Set("operationID", c.clock.OperationID())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the gateway and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	_ = c.machine.Transition(status.Connecting)

	addr, err := c.dialURL()
	if err != nil {
		_ = c.machine.Transition(status.ConnectFailed)
		return err
	}
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		_ = c.machine.Transition(status.ConnectFailed)
		return fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(8 << 20)

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.kicked = false
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connected)
	c.logger.Info("gateway connected", zap.String("addr", c.opts.Addr))

	go c.readLoop(conn, done)
	return nil
}

// Run keeps the client connected until ctx is cancelled or the session is
// kicked offline, backing off between attempts.
func (c *Client) Run(ctx context.Context) {
	backoff := c.opts.ReconnectMin
	for {
		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("gateway connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			backoff = c.opts.ReconnectMin
			c.mu.Lock()
			done := c.done
			c.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				c.Close()
				return
			}
			if c.Kicked() {
				c.logger.Warn("kicked offline; not reconnecting")
				return
			}
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > c.opts.ReconnectMax {
			backoff = c.opts.ReconnectMax
		}
	}
}

// Kicked reports whether the last connection ended with a kick.
func (c *Client) Kicked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kicked
}

// Close closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	ctx := context.Background()
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.logger.Info("gateway connection closed")
			default:
				c.logger.Warn("gateway read failed", zap.Error(err))
			}
			c.dropConn(conn)
			return
		}

		switch env.Type {
		case typeResponse:
			c.deliver(env)
		case typeEvent:
			if env.Event == eventKickedOffline {
				c.mu.Lock()
				c.kicked = true
				c.mu.Unlock()
			}
			c.handler.Handle(env.Event, env.Data)
		default:
			c.logger.Debug("ignoring frame", zap.String("type", env.Type))
		}
	}
}

// dropConn forgets conn, fails pending requests and records the disconnect.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan envelope)
	kicked := c.kicked
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if !kicked {
		_ = c.machine.Transition(status.Disconnected)
	}
}

func (c *Client) deliver(env envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.OperationID]
	delete(c.pending, env.OperationID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("response without a waiting request", zap.String("operation_id", env.OperationID))
		return
	}
	ch <- env
}

// call sends a request and decodes the response data into out (when non-nil).
func (c *Client) call(ctx context.Context, method string, in, out any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	opID := c.clock.OperationID()
	ch := make(chan envelope, 1)
	c.pending[opID] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, opID)
		c.mu.Unlock()
	}

	req := envelope{Type: typeRequest, OperationID: opID, Method: method}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			forget()
			return fmt.Errorf("encode %s: %w", method, err)
		}
		req.Data = data
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, req); err != nil {
		forget()
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if resp.ErrCode != 0 {
			return &Error{Method: method, Code: resp.ErrCode, Msg: resp.ErrMsg}
		}
		if out != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("decode %s: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		forget()
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}
