package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scenelingua/engine/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBuffer  = 64
	eventBuffer = 64
)

// State of the session channel.
type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
)

// ConnectionError reports that the channel failed to open or dropped.
// There is no automatic reconnection; the caller opens a new channel.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("channel to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Channel is the persistent bidirectional connection to the practice
// backend. A Channel is single-use: once closed, it stays closed.
type Channel struct {
	url string

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	started bool

	send   chan []byte
	events chan protocol.Envelope
	done   chan struct{}

	closeOnce  sync.Once
	eventsOnce sync.Once
}

func New(url string) *Channel {
	return &Channel{
		url:    url,
		state:  StateClosed,
		send:   make(chan []byte, sendBuffer),
		events: make(chan protocol.Envelope, eventBuffer),
		done:   make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events delivers inbound envelopes in arrival order. The channel is
// closed when the connection ends, however it ends.
func (c *Channel) Events() <-chan protocol.Envelope {
	return c.events
}

// Open dials the backend and performs the control:start handshake. On
// transport failure the channel returns to Closed and the failure is
// reported as a *ConnectionError.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed || c.started {
		c.mu.Unlock()
		return fmt.Errorf("channel is %s, not re-openable", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return &ConnectionError{URL: c.url, Err: err}
	}

	start, err := protocol.NewEnvelope(protocol.TypeControl, protocol.ControlPayload{Action: protocol.ActionStart})
	if err == nil {
		err = conn.WriteJSON(start)
	}
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return &ConnectionError{URL: c.url, Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.started = true
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()

	slog.Debug("Channel open", "url", c.url)
	return nil
}

// Send serializes and transmits an envelope while the channel is Open.
// When it is not, the message is dropped silently: delivery is
// at-most-once and callers tolerate loss.
func (c *Channel) Send(env protocol.Envelope) {
	c.mu.Lock()
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open {
		slog.Debug("Dropping send on non-open channel", "type", env.Type)
		return
	}

	data, err := protocol.Encode(env)
	if err != nil {
		slog.Error("Failed to encode envelope", "type", env.Type, "error", err)
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		slog.Warn("Send buffer full, dropping message", "type", env.Type)
	}
}

// Close tears the channel down and releases the transport. Safe to call
// from any state, any number of times.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		conn := c.conn
		started := c.started
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			conn.Close()
		}
		if !started {
			c.eventsOnce.Do(func() { close(c.events) })
		}
		slog.Debug("Channel closed", "url", c.url)
	})
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Channel write failed", "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Channel) readPump() {
	defer func() {
		c.Close()
		c.eventsOnce.Do(func() { close(c.events) })
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Channel read ended", "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			// Malformed inbound frames are never fatal to the session.
			slog.Debug("Dropping malformed inbound frame", "error", err)
			continue
		}

		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}
