package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeNewMessage  MessageType = "new_message"
	MessageTypeError       MessageType = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      MessageType `json:"type"`
	AccountID uint        `json:"account_id,omitempty"`
	Message   interface{} `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewMessagePayload represents the payload for new message notifications
type NewMessagePayload struct {
	ID          uint   `json:"id"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name,omitempty"`
	Subject     string `json:"subject,omitempty"`
	ReceivedAt  string `json:"received_at"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Account subscriptions: accountID -> set of clients
	subscriptions map[uint]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Subscribe to account
	subscribe chan *subscriptionRequest

	// Unsubscribe from account
	unsubscribeAccount chan *subscriptionRequest

	// Broadcast to account subscribers
	broadcast chan *broadcastMessage

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger
}

type subscriptionRequest struct {
	client    *Client
	accountID uint
}

type broadcastMessage struct {
	accountID uint
	message   []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:            make(map[*Client]bool),
		subscriptions:      make(map[uint]map[*Client]bool),
		register:           make(chan *Client),
		unregister:         make(chan *Client),
		subscribe:          make(chan *subscriptionRequest),
		unsubscribeAccount: make(chan *subscriptionRequest),
		broadcast:          make(chan *broadcastMessage, 256),
		logger:             logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client registered")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				// Remove from all subscriptions
				for accountID, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, accountID)
					}
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unregistered")
			}

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.accountID] == nil {
				h.subscriptions[req.accountID] = make(map[*Client]bool)
			}
			h.subscriptions[req.accountID][req.client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client subscribed to account", slog.Uint64("account_id", uint64(req.accountID)))
			}

		case req := <-h.unsubscribeAccount:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.accountID]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.accountID)
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unsubscribed from account", slog.Uint64("account_id", uint64(req.accountID)))
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			subscribers := h.subscriptions[msg.accountID]
			for client := range subscribers {
				select {
				case client.send <- msg.message:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to an account
func (h *Hub) Subscribe(client *Client, accountID uint) {
	h.subscribe <- &subscriptionRequest{client: client, accountID: accountID}
}

// Unsubscribe unsubscribes a client from an account
func (h *Hub) Unsubscribe(client *Client, accountID uint) {
	h.unsubscribeAccount <- &subscriptionRequest{client: client, accountID: accountID}
}

// BroadcastNewMessage broadcasts a new message notification to account subscribers
func (h *Hub) BroadcastNewMessage(accountID uint, payload *NewMessagePayload) {
	msg := WSMessage{
		Type:      MessageTypeNewMessage,
		AccountID: accountID,
		Message:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		}
		return
	}

	h.broadcast <- &broadcastMessage{
		accountID: accountID,
		message:   data,
	}
}

// NotifyNewMessage pushes a freshly stored message to the account's
// subscribers. The sync engine calls this once per canonical insert.
func (h *Hub) NotifyNewMessage(accountID uint, message *models.Message) {
	h.BroadcastNewMessage(accountID, &NewMessagePayload{
		ID:          message.ID,
		SenderEmail: message.SenderEmail,
		SenderName:  message.SenderName,
		Subject:     message.Subject,
		ReceivedAt:  message.ReceivedAt.Format(time.RFC3339),
	})
}
