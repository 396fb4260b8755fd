package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256

	maxInboundBytes = 8 * 1024
)

// Client is one websocket connection bound to an authenticated
// identity. Writes go through a buffered channel drained by a single
// writer goroutine, so delivery to a slow client never blocks the
// caller.
type Client struct {
	UserID uuid.UUID

	session string
	conn    *websocket.Conn
	send    chan []byte
	logger  zerolog.Logger

	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection.
func NewClient(userID uuid.UUID, conn *websocket.Conn, logger zerolog.Logger) *Client {
	session := ulid.Make().String()
	return &Client{
		UserID:  userID,
		session: session,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		logger:  logger.With().Stringer("user_id", userID).Str("session", session).Logger(),
	}
}

// SessionID returns the connection's unique session id.
func (c *Client) SessionID() string {
	return c.session
}

// Deliver queues an event for the client. Returns false when the send
// buffer is full or the client is closed; the event is dropped either
// way.
func (c *Client) Deliver(ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event", ev.Type).Msg("marshal event failed")
		return false
	}

	defer func() {
		// Send on a closed channel after teardown; the event is lost,
		// which is fine for a best-effort push.
		_ = recover()
	}()

	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn().Str("event", ev.Type).Msg("send buffer full, dropping event")
		return false
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadLoop consumes inbound events until the connection drops, passing
// each parsed envelope to dispatch. It runs on the connection's
// goroutine and returns when the peer disconnects.
func (c *Client) ReadLoop(dispatch func(c *Client, ev Inbound)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var ev Inbound
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug().Err(err).Msg("discarding malformed event")
			continue
		}

		dispatch(c, ev)
	}
}

// WriteLoop drains the send channel onto the wire and keeps the
// connection alive with pings. Runs on its own goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
