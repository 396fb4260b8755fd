// Package chatd provides a client for the chatd messaging service.
package chatd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event mirrors the server's websocket envelope.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message mirrors the server's message representation.
type Message struct {
	ID         int64      `json:"id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Content    string     `json:"content"`
	Kind       string     `json:"message_type"`
	Read       bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Client is a chatd API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new chatd client. The token is the bearer
// credential issued by the identity service.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Connect opens the real-time channel. Incoming events are delivered on
// the returned channel until the connection drops or ctx is cancelled.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {c.Token}}.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn := &Conn{ws: ws, Events: make(chan Event, 64)}
	go conn.readLoop()
	return conn, nil
}

// Conn is a live real-time channel.
type Conn struct {
	ws     *websocket.Conn
	Events chan Event
}

func (c *Conn) readLoop() {
	defer close(c.Events)
	for {
		var ev Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			return
		}
		c.Events <- ev
	}
}

// Close shuts the channel down.
func (c *Conn) Close() error {
	return c.ws.Close()
}

func (c *Conn) emit(eventType string, payload any) error {
	return c.ws.WriteJSON(map[string]any{"type": eventType, "payload": payload})
}

// Send delivers a message over the real-time channel. The persisted
// message comes back as a message_sent event.
func (c *Conn) Send(receiver uuid.UUID, content, kind string) error {
	return c.emit("send_message", map[string]any{
		"receiver_id":  receiver,
		"content":      content,
		"message_type": kind,
	})
}

// StartTyping signals the peer that this side is typing.
func (c *Conn) StartTyping(receiver uuid.UUID) error {
	return c.emit("typing_start", map[string]any{"receiver_id": receiver})
}

// StopTyping withdraws the typing signal.
func (c *Conn) StopTyping(receiver uuid.UUID) error {
	return c.emit("typing_stop", map[string]any{"receiver_id": receiver})
}

// SendMessage delivers a message over the REST surface.
func (c *Client) SendMessage(ctx context.Context, receiver uuid.UUID, content, kind string) (*Message, error) {
	body := map[string]any{"receiver_id": receiver, "content": content, "message_type": kind}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/chat/send", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ThreadPage is one page of a conversation thread.
type ThreadPage struct {
	Messages []Message `json:"messages"`
}

// Thread fetches one page of the history with peer, oldest-first. The
// server marks the page read for the caller.
func (c *Client) Thread(ctx context.Context, peer uuid.UUID, page, limit int) (*ThreadPage, error) {
	path := "/chat/conversation/" + peer.String() +
		"?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	var result ThreadPage
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnreadCount returns the caller's total unread message count.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var result struct {
		UnreadCount int64 `json:"unread_count"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/unread-count", nil, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("chatd: %s", apiErr.Error)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
