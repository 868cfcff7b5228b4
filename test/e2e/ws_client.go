package e2e

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/events"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// WSMessage is the decoded envelope of one server-to-client message.
// Control messages carry Type plus Channel or ConnectionID; activity
// messages also carry the event.
type WSMessage struct {
	Type         string                `json:"type"`
	Channel      string                `json:"channel,omitempty"`
	ConnectionID string                `json:"connection_id,omitempty"`
	Message      string                `json:"message,omitempty"`
	Event        *models.ActivityEvent `json:"event,omitempty"`
}

// WSClient is a test WebSocket client that records every message the
// server sends, so assertions can run over the full arrival history.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn

	mu       sync.Mutex
	messages []WSMessage

	done      chan struct{}
	closeOnce sync.Once
}

// WSConnect dials the app's WebSocket endpoint and waits for the
// connection.established handshake.
func WSConnect(t *testing.T, app *TestApp) *WSClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, app.WSURL, nil)
	require.NoError(t, err)

	c := &WSClient{t: t, conn: conn, done: make(chan struct{})}
	go c.readLoop()
	t.Cleanup(c.Close)

	established := c.WaitForMessage(func(m WSMessage) bool {
		return m.Type == "connection.established"
	}, 5*time.Second)
	require.NotEmpty(t, established.ConnectionID)
	return c
}

// Subscribe subscribes to a channel and waits for the confirmation.
// The server follows the confirmation with a catch-up of every prior
// event on the channel, so subscribing late loses nothing.
func (c *WSClient) Subscribe(channel string) {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := json.Marshal(events.ClientMessage{Action: "subscribe", Channel: channel})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, raw))

	c.WaitForMessage(func(m WSMessage) bool {
		return m.Type == "subscription.confirmed" && m.Channel == channel
	}, 5*time.Second)
}

func (c *WSClient) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
	}
}

// Messages returns a snapshot of everything received so far.
func (c *WSClient) Messages() []WSMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WSMessage(nil), c.messages...)
}

// WaitForMessage blocks until a received message satisfies the
// predicate, checking already-received messages first.
func (c *WSClient) WaitForMessage(predicate func(WSMessage) bool, timeout time.Duration) WSMessage {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		for _, m := range c.Messages() {
			if predicate(m) {
				return m
			}
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("no matching WebSocket message within %v (%d received)", timeout, len(c.Messages()))
			return WSMessage{}
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// WaitForEventType waits for an activity.event on the channel with the
// given event type. An empty channel matches any channel.
func (c *WSClient) WaitForEventType(channel string, eventType models.ActivityType, timeout time.Duration) models.ActivityEvent {
	c.t.Helper()
	msg := c.WaitForMessage(func(m WSMessage) bool {
		if m.Type != "activity.event" || m.Event == nil {
			return false
		}
		if channel != "" && m.Channel != channel {
			return false
		}
		return m.Event.Type == eventType
	}, timeout)
	return *msg.Event
}

// EventsByType returns every received activity event of the given type,
// in arrival order, across all channels.
func (c *WSClient) EventsByType(eventType models.ActivityType) []models.ActivityEvent {
	var out []models.ActivityEvent
	for _, m := range c.Messages() {
		if m.Type == "activity.event" && m.Event != nil && m.Event.Type == eventType {
			out = append(out, *m.Event)
		}
	}
	return out
}

// Close tears the connection down and waits for the read loop to exit.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close(websocket.StatusNormalClosure, "test done")
		<-c.done
	})
}
