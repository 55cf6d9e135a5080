package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/estate360/positioner/internal/channel"
	"github.com/estate360/positioner/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	outboxSize   = 1024
	maxReconnect = 10
	minBackoff   = time.Second
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	ackTimeout   = 10 * time.Second
)

// connection owns one WebSocket at a time. A single writer goroutine drains
// the outbox; acks are routed to whoever waits for that message type.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	// replay is resent first after every reconnect.
	replay []byte
	// unsent holds messages whose write failed; the next writer sends them
	// before anything else in the outbox.
	unsent  [][]byte
	waiters map[string][]chan struct{}

	outbox channel.Channel[[]byte]
	done   chan struct{}

	wsURL  string
	secret string
	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		waiters: make(map[string][]chan struct{}),
		outbox:  channel.New[[]byte](outboxSize),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// nextBackoff doubles d up to maxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// dial connects and starts the read and write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	if !c.start(conn) {
		return fmt.Errorf("websocket dial: connection closed")
	}
	return nil
}

// dialOnce performs a single dial with the secret as query parameter.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// start makes conn the current socket and runs its loops. After close it
// closes conn instead and returns false.
func (c *connection) start(conn *ws.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop(conn)
	go c.readLoop(conn)
	return true
}

// connected reports whether a socket is currently open.
func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// setReplay stores the message sent first after a reconnect. nil clears it.
func (c *connection) setReplay(data []byte) {
	c.mu.Lock()
	c.replay = data
	c.mu.Unlock()
}

func (c *connection) write(conn *ws.Conn, msgType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(msgType, data)
}

// takeUnsent returns the failed messages to send first, leaving out one
// equal to the replay reconnect already sent.
func (c *connection) takeUnsent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.unsent
	c.unsent = nil
	out := pending[:0]
	for _, data := range pending {
		if c.replay != nil && bytes.Equal(data, c.replay) {
			continue
		}
		out = append(out, data)
	}
	return out
}

// keepUnsent holds messages that failed on conn. If another socket has
// already taken over they go back to the outbox.
func (c *connection) keepUnsent(conn *ws.Conn, pending [][]byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("WebSocket closed, dropping unsent messages", "count", len(pending))
		return
	}
	if c.conn == nil || c.conn == conn {
		c.unsent = append(pending, c.unsent...)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	for _, data := range pending {
		c.send(data)
	}
}

// writeLoop drains the outbox onto conn and keeps it alive with pings. It
// hands over to reconnect on the first failure; the message that failed is
// kept for the next socket.
func (c *connection) writeLoop(conn *ws.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	pending := c.takeUnsent()
	for i, data := range pending {
		if err := c.write(conn, ws.TextMessage, data); err != nil {
			c.logger.Warn("WebSocket write error", "error", err)
			c.keepUnsent(conn, pending[i:])
			go c.reconnect(conn)
			return
		}
	}

	for {
		var (
			err    error
			failed []byte
		)
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err = conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait))
		case data := <-c.outbox.Receive():
			if err = c.write(conn, ws.TextMessage, data); err != nil {
				failed = data
			}
		}
		if err != nil {
			c.logger.Warn("WebSocket write error", "error", err)
			if failed != nil {
				c.keepUnsent(conn, [][]byte{failed})
			}
			go c.reconnect(conn)
			return
		}
	}
}

// readLoop routes acks from the server to their waiters.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		c.deliverAck(ack.For)
	}
}

func (c *connection) deliverAck(msgType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiting := c.waiters[msgType]
	if len(waiting) == 0 {
		c.logger.Debug("Unexpected ack", "for", msgType)
		return
	}
	close(waiting[0])
	c.waiters[msgType] = waiting[1:]
}

// reconnect replaces broken with a fresh socket, retrying with exponential
// backoff. Only the first caller for a given socket does the work.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	_ = broken.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := minBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		replay := c.replay
		c.mu.Unlock()
		if replay != nil {
			if err := c.write(conn, ws.TextMessage, replay); err != nil {
				c.logger.Warn("Failed to replay open_panorama after reconnect", "error", err)
				_ = conn.Close()
				backoff = nextBackoff(backoff)
				continue
			}
		}

		if !c.start(conn) {
			return
		}
		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send queues data for the writer. It never blocks; a full outbox drops.
func (c *connection) send(data []byte) {
	if !c.outbox.TrySend(data) {
		c.logger.Warn("WebSocket outbox full, dropping message")
	}
}

// sendAndWait queues data and blocks until the server acks msgType or the
// timeout expires.
func (c *connection) sendAndWait(data []byte, msgType string, timeout time.Duration) error {
	acked := make(chan struct{})
	c.mu.Lock()
	c.waiters[msgType] = append(c.waiters[msgType], acked)
	c.mu.Unlock()
	defer c.dropWaiter(msgType, acked)

	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-acked:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for ack of %q", msgType)
	case <-c.done:
		return fmt.Errorf("connection closed while waiting for ack of %q", msgType)
	}
}

func (c *connection) dropWaiter(msgType string, acked chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiting := c.waiters[msgType]
	for i, ch := range waiting {
		if ch == acked {
			c.waiters[msgType] = append(waiting[:i:i], waiting[i+1:]...)
			return
		}
	}
}

// close sends a close frame and stops both loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return conn.Close()
}
