package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/broadcast"
	"github.com/taskman/taskman/internal/domain"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	maxInboundSize = 4096
)

// State is the lifecycle position of an accepted connection. The handshake
// runs before a conn exists, so there is no connecting state here.
type State int32

const (
	StateAuthenticated State = iota + 1
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// conn is one authenticated client. Only serve writes to the socket; the
// reader goroutine only reads.
type conn struct {
	ws       *websocket.Conn
	userID   domain.UserID
	groupKey string
	member   *broadcast.Member
	registry Registry
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics
	release  func()

	state     atomic.Int32
	closeOnce sync.Once
	readDone  chan struct{}
}

func newConn(ws *websocket.Conn, userID domain.UserID, groupKey string, member *broadcast.Member, registry Registry, clock clockwork.Clock, m *metrics.WebSocketMetrics, release func()) *conn {
	c := &conn{
		ws:       ws,
		userID:   userID,
		groupKey: groupKey,
		member:   member,
		registry: registry,
		clock:    clock,
		metrics:  m,
		release:  release,
		readDone: make(chan struct{}),
	}
	c.state.Store(int32(StateAuthenticated))
	m.ActiveConnections.Inc()
	return c
}

func (c *conn) State() State {
	return State(c.state.Load())
}

// serve relays member events to the client until the client goes away,
// a write fails, or the registry drops the member.
func (c *conn) serve(ctx context.Context) {
	slog.DebugContext(ctx, "WebSocket connected", "group", c.groupKey)

	go c.readLoop(ctx)

	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	cause := "client_closed"
	defer func() { c.close(ctx, cause) }()

	for {
		select {
		case msg := <-c.member.Events():
			if err := c.writeEvent(msg); err != nil {
				cause = "write_error"
				return
			}

		case <-c.readDone:
			return

		case <-c.member.Done():
			cause = "dropped"
			if err := c.flush(); err != nil {
				cause = "write_error"
				return
			}
			c.setWriteDeadline()
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "connection dropped by server"))
			return

		case <-ticker.Chan():
			c.setWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				cause = "ping_error"
				return
			}
		}
	}
}

// flush writes every event the member accepted before it was dropped.
func (c *conn) flush() error {
	for {
		select {
		case msg := <-c.member.Events():
			if err := c.writeEvent(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *conn) writeEvent(msg []byte) error {
	c.setWriteDeadline()
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}
	c.metrics.FramesWritten.Inc()
	return nil
}

// readLoop drains inbound frames. Client messages carry no meaning yet and
// are discarded.
func (c *conn) readLoop(ctx context.Context) {
	defer close(c.readDone)

	c.ws.SetReadLimit(maxInboundSize)
	c.setReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.setReadDeadline()
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "WebSocket read failed", "error", err)
			}
			return
		}
		c.setReadDeadline()
		slog.DebugContext(ctx, "Ignoring inbound message", "bytes", len(payload))
	}
}

// close leaves the group and tears the socket down. Only the first call
// has an effect.
func (c *conn) close(ctx context.Context, cause string) {
	c.closeOnce.Do(func() {
		c.registry.Leave(c.groupKey, c.member)
		_ = c.ws.Close()
		<-c.readDone

		c.state.Store(int32(StateClosed))
		c.metrics.ActiveConnections.Dec()
		c.metrics.Closed.WithLabelValues(cause).Inc()
		if c.release != nil {
			c.release()
		}
		slog.DebugContext(ctx, "WebSocket closed", "group", c.groupKey, "cause", cause)
	})
}

func (c *conn) setWriteDeadline() {
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *conn) setReadDeadline() {
	_ = c.ws.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
