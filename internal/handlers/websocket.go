package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by the server before the upgrade
	},
}

// broadcastEvents are forwarded to every connected client
var broadcastEvents = []interfaces.EventType{
	interfaces.EventTaskStatusChanged,
	interfaces.EventHistoryRecorded,
	interfaces.EventRemoteStatusChanged,
	interfaces.EventConnectionChanged,
}

// WSMessage is the envelope of every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdate is sent to a client right after it connects
type StatusUpdate struct {
	Connected        bool   `json:"connected"`
	SiteURL          string `json:"siteUrl,omitempty"`
	AutoSyncRunning  bool   `json:"autoSyncRunning"`
	ServerInstanceID string `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
	Timestamp        string `json:"timestamp"`
}

// WebSocketHandler streams sync events to browser clients
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	auth             interfaces.JiraAuth
	syncEngine       interfaces.JiraSync
	serverInstanceID string
}

// NewWebSocketHandler creates the handler and subscribes it to the event bus
func NewWebSocketHandler(eventService interfaces.EventService, auth interfaces.JiraAuth, syncEngine interfaces.JiraSync, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		auth:             auth,
		syncEngine:       syncEngine,
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	if eventService != nil {
		h.SubscribeToEvents(eventService)
	}

	return h
}

// SubscribeToEvents forwards sync events to connected clients
func (h *WebSocketHandler) SubscribeToEvents(eventService interfaces.EventService) {
	for _, eventType := range broadcastEvents {
		if err := eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			h.Broadcast(string(event.Type), event.Payload)
			return nil
		}); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
		}
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendStatus(r.Context(), conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

func (h *WebSocketHandler) sendStatus(ctx context.Context, conn *websocket.Conn) {
	status := StatusUpdate{
		ServerInstanceID: h.serverInstanceID,
		Timestamp:        time.Now().Format(time.RFC3339),
	}
	if h.auth != nil {
		if info, err := h.auth.GetConnectionInfo(ctx); err == nil && info != nil {
			status.Connected = true
			status.SiteURL = info.SiteURL
		}
	}
	if h.syncEngine != nil {
		status.AutoSyncRunning = h.syncEngine.IsAutoSyncRunning()
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	err := conn.WriteJSON(WSMessage{Type: "status", Payload: status})
	mutex.Unlock()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send status to client")
	}
}

// Broadcast sends one message to all connected clients
func (h *WebSocketHandler) Broadcast(messageType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: messageType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", messageType).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", messageType).Msg("Failed to send message to client")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
