package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/govoice/internal/sessions"
	"github.com/nextlevelbuilder/govoice/internal/store"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

const (
	// writeWait bounds a single frame or control write.
	writeWait = 10 * time.Second
	// pongWait is how long the reader tolerates silence before dropping
	// the socket. Must exceed pingPeriod.
	pongWait = 60 * time.Second
	// pingPeriod is the keepalive interval.
	pingPeriod = 30 * time.Second
	// sendQueueSize buffers outbound frames so slow sockets never stall
	// the turn pipeline. Audio payloads dominate, so keep this small.
	sendQueueSize = 32
	// defaultMaxMessageBytes caps inbound frames when config does not.
	defaultMaxMessageBytes = 128 << 10
)

// Client is one WebSocket connection bound to a session. Several clients may
// share a session; each gets its own send queue and the bus fans frames out
// to all of them.
type Client struct {
	id        string
	sessionID string
	email     string

	conn *websocket.Conn
	orch *Orchestrator

	send chan *protocol.Frame
	done chan struct{}
	once sync.Once

	// user and state are bound by the orchestrator during connect and are
	// read-only afterwards.
	user  *store.User
	state *sessions.State
}

func newClient(conn *websocket.Conn, orch *Orchestrator, sessionID, email string) *Client {
	return &Client{
		id:        uuid.Must(uuid.NewV7()).String(),
		sessionID: sessionID,
		email:     strings.ToLower(strings.TrimSpace(email)),
		conn:      conn,
		orch:      orch,
		send:      make(chan *protocol.Frame, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// SendFrame enqueues f for delivery and reports acceptance. It never blocks:
// when the queue is saturated the frame is dropped and false returned, which
// the bus counts against delivery.
func (c *Client) SendFrame(f *protocol.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		slog.Warn("gateway.send_queue_full", "session_id", c.sessionID, "frame_type", f.Type)
		return false
	}
}

// run drives the connection: bind identity, then pump frames until the peer
// goes away. Blocks until the read side ends.
func (c *Client) run(ctx context.Context) {
	go c.writeLoop()

	if err := c.orch.connect(ctx, c); err != nil {
		slog.Warn("session.connect_failed", "session_id", c.sessionID, "error", err)
		c.close()
		return
	}
	defer c.orch.disconnect(c)

	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	limit := int64(c.orch.cfg.Gateway.MaxMessageChars)
	if limit <= 0 {
		limit = defaultMaxMessageBytes
	}
	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("gateway.read_closed", "session_id", c.sessionID, "error", err)
			}
			return
		}
		c.orch.dispatch(ctx, c, data)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close tears the socket down exactly once. Closing the conn unblocks the
// read loop; closing done stops the write loop and future sends.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
