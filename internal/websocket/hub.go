package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/outbound"
)

// Message types
const (
	MessageTypeEvent             = "event"
	MessageTypeIntent            = "intent"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Topics clients can subscribe to. Intents are sent to every client.
const (
	TopicLeaderboard = "leaderboard"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Dispatcher handles events received from gateway clients
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) ([]domain.Intent, error)
}

// StandingsSource provides today's leaderboard
type StandingsSource interface {
	Standings(ctx context.Context) (domain.Leaderboard, error)
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Subscribed clients by topic
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	dispatcher Dispatcher
	prefix     string
	replies    outbound.Publisher

	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

// NewHub creates a new Hub. Events from clients are classified with the
// command prefix and passed to dispatcher.
func NewHub(dispatcher Dispatcher, prefix string, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		dispatcher:  dispatcher,
		prefix:      prefix,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetReplies sets a publisher that also receives every reply sent to a client
func (h *Hub) SetReplies(p outbound.Publisher) {
	h.replies = p
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for topic, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, topic)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.topic]; !ok {
				h.clients[req.topic] = make(map[*Client]bool)
			}
			h.clients[req.topic][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.topic]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.topic)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to topic subscribers, or to everyone when it has no topic
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.Topic != "" {
		targets = h.clients[message.Topic]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// Publish broadcasts an intent to every connected client
func (h *Hub) Publish(_ context.Context, intent domain.Intent) error {
	message := &Message{
		Type:      MessageTypeIntent,
		Data:      intent,
		Timestamp: intent.CreatedAt,
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping intent", "intent_id", intent.ID)
	}
	return nil
}

// BroadcastStandings sends the leaderboard to subscribers
func (h *Hub) BroadcastStandings(board domain.Leaderboard) {
	message := &Message{
		Type:      MessageTypeLeaderboardUpdate,
		Topic:     TopicLeaderboard,
		Data:      board,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// StandingsPublisher returns a publisher that broadcasts fresh standings
// whenever an intent confirms a recorded score
func (h *Hub) StandingsPublisher(source StandingsSource) outbound.Publisher {
	return outbound.PublisherFunc(func(ctx context.Context, intent domain.Intent) error {
		if intent.Reaction == "" {
			return nil
		}
		board, err := source.Standings(ctx)
		if err != nil {
			return err
		}
		h.BroadcastStandings(board)
		return nil
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a topic
func (h *Hub) Subscribe(client *Client, topic string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a topic
func (h *Hub) Unsubscribe(client *Client, topic string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
