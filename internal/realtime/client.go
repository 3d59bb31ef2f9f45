package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/nimbuscorp/syncengine/internal/classifier"
)

// Client is the client-side Realtime Channel transport: it dials the
// server, reports a drop through State (redialing is left to the
// caller), and enforces the Class-D hard refusal a
// second time at the send boundary (defense in depth alongside the
// hub's own check; spec §4.8 "Enforces that Class D messages are
// refused by C7 regardless of caller").
type Client struct {
	url            string
	token          string
	heartbeatEvery time.Duration

	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnState
}

// ConnState is the connection lifecycle (spec §4.7).
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateReconnecting ConnState = "reconnecting"
)

// NewClient constructs a Client bound to a realtime endpoint.
func NewClient(url, token string, heartbeatEvery time.Duration) *Client {
	return &Client{url: url, token: token, heartbeatEvery: heartbeatEvery, state: StateDisconnected}
}

// State returns the current connection lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the realtime endpoint, authenticating at handshake via
// a bearer token in the request header (spec §4.7 "Authentication
// establishes {tenantId, userId, roles, clientId}").
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	opts := &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Bearer " + c.token}},
	}
	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("realtime: dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)
	return nil
}

// Close disconnects cleanly.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateDisconnected)
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "client closing")
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Send transmits env. A Class-D envelope is refused unconditionally,
// never reaching the wire (spec §4.8, §8 S6).
func (c *Client) Send(env Envelope) error {
	if !classifier.AllowsRealtimeTransport(env.InteractionClass) {
		return fmt.Errorf("realtime: class %s not allowed on realtime channel", env.InteractionClass)
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("realtime: not connected")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, env)
}

// ReadLoop receives envelopes until the connection drops or ctx is
// cancelled, invoking handle for each. Reconnect policy is left to the
// caller (e.g. the agent daemon), which observes state transitions via
// State() and redials.
func (c *Client) ReadLoop(ctx context.Context, handle func(Envelope)) error {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("realtime: not connected")
		}
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			c.setState(StateDisconnected)
			return fmt.Errorf("realtime: read: %w", err)
		}
		handle(env)
	}
}

// Heartbeat periodically pings the server; absence of a pong within half
// the heartbeat interval is surfaced to the caller as a disconnect so local
// C4-style offline signals can be raised for this channel (spec §4.7
// "Heartbeat").
func (c *Client) Heartbeat(ctx context.Context, onMissed func()) {
	ticker := time.NewTicker(c.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				onMissed()
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, c.heartbeatEvery/2)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.setState(StateDisconnected)
				onMissed()
			}
		}
	}
}

// marshalEnvelope is used by tests that need raw wire bytes without a
// live connection.
func marshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
