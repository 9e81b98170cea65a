package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/globle-leaderboard/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Time allowed for the engine to handle one event
	dispatchTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Gateway clients are bots, not browsers
		return true
	},
}

// Client is a chat gateway connected over WebSocket
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type  string           `json:"type"`
	Topic string           `json:"topic,omitempty"`
	Event *domain.Envelope `json:"event,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: logger,
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage processes incoming client messages
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeEvent:
		if msg.Event == nil {
			c.sendError("event required")
			return
		}
		c.handleEvent(*msg.Event)

	case MessageTypeSubscribe:
		if msg.Topic == "" {
			c.sendError("topic required for subscribe")
			return
		}
		c.hub.Subscribe(c, msg.Topic)
		c.sendMessage(Message{Type: "subscribed", Topic: msg.Topic, Data: map[string]string{"status": "ok"}})

	case MessageTypeUnsubscribe:
		if msg.Topic != "" {
			c.hub.Unsubscribe(c, msg.Topic)
			c.sendMessage(Message{Type: "unsubscribed", Topic: msg.Topic, Data: map[string]string{"status": "ok"}})
		}

	case MessageTypePing:
		c.sendMessage(Message{Type: MessageTypePong})

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// handleEvent runs the event through the engine and replies to this client only
func (c *Client) handleEvent(env domain.Envelope) {
	ev, err := env.Event(c.hub.prefix)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.hub.ctx, dispatchTimeout)
	defer cancel()

	intents, err := c.hub.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		c.logger.Error("failed to dispatch event", "client_id", c.id, "type", env.Type, "error", err)
		if errors.Is(err, domain.ErrInvalidEvent) {
			c.sendError(err.Error())
		} else {
			c.sendError(domain.ErrInternalError.Error())
		}
		return
	}

	for _, intent := range intents {
		c.sendMessage(Message{Type: MessageTypeIntent, Data: intent, Timestamp: intent.CreatedAt})
		if c.hub.replies != nil {
			if err := c.hub.replies.Publish(ctx, intent); err != nil {
				c.logger.Warn("failed to forward reply", "intent_id", intent.ID, "error", err)
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	c.sendMessage(Message{
		Type: MessageTypeError,
		Data: map[string]string{"error": errMsg},
	})
}

// sendMessage queues a message for this client, dropping it if the buffer is full
func (c *Client) sendMessage(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client buffer full, skipping", "client_id", c.id)
	}
}

// ServeWs handles WebSocket requests from peers
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id)
}
