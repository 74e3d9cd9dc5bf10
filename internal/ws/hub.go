package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

// Hub maintains active websocket rooms: one room per conversation and one
// per user for conversation-list updates.
type Hub struct {
	conversationRooms map[string]map[*websocket.Conn]ConnInfo
	listRooms         map[string]map[*websocket.Conn]ConnInfo
	collector         *telemetry.Collector
	mu                sync.RWMutex
}

// NewHub creates an empty hub. The collector may be nil in tests.
func NewHub(collector *telemetry.Collector) *Hub {
	return &Hub{
		conversationRooms: make(map[string]map[*websocket.Conn]ConnInfo),
		listRooms:         make(map[string]map[*websocket.Conn]ConnInfo),
		collector:         collector,
	}
}

// AddConversationClient registers a connection in a conversation room and
// reports the room's new size.
func (h *Hub) AddConversationClient(conversationID string, conn *websocket.Conn, info ConnInfo) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conversationRooms[conversationID]; !ok {
		h.conversationRooms[conversationID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.conversationRooms[conversationID][conn] = info
	return len(h.conversationRooms[conversationID])
}

// RemoveConversationClient removes a connection and reports the remaining
// room size.
func (h *Hub) RemoveConversationClient(conversationID string, conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.conversationRooms[conversationID]
	if !ok {
		return 0
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.conversationRooms, conversationID)
		return 0
	}
	return len(conns)
}

// AddListClient registers a connection in a user's conversation-list room.
func (h *Hub) AddListClient(userID string, conn *websocket.Conn, info ConnInfo) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listRooms[userID]; !ok {
		h.listRooms[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.listRooms[userID][conn] = info
	return len(h.listRooms[userID])
}

// RemoveListClient removes a connection from a user's list room.
func (h *Hub) RemoveListClient(userID string, conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.listRooms[userID]
	if !ok {
		return 0
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.listRooms, userID)
		return 0
	}
	return len(conns)
}

// BroadcastNewMessage delivers a new-message event to a conversation room.
func (h *Hub) BroadcastNewMessage(conversationID string, msg models.MessageWithSender) {
	h.broadcastConversation(conversationID, models.MessageEvent{Type: "new_message", Message: &msg})
}

// BroadcastMessageUpdate delivers an edit/delete event to a conversation room.
func (h *Hub) BroadcastMessageUpdate(conversationID string, msg models.MessageWithSender) {
	h.broadcastConversation(conversationID, models.MessageEvent{Type: "message_updated", Message: &msg, MessageID: msg.ID})
}

func (h *Hub) broadcastConversation(conversationID string, event models.MessageEvent) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conversationRooms[conversationID]))
	for conn := range h.conversationRooms[conversationID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveConversationClient(conversationID, conn)
			h.recordWSError("conversation", err)
		}
	}
}

// BroadcastConversationList delivers a refreshed listing to a user's list
// room.
func (h *Hub) BroadcastConversationList(userID string, summaries []models.ConversationSummary) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.listRooms[userID]))
	for conn := range h.listRooms[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(models.ConversationListEvent{Type: "conversation_list", Conversations: summaries})
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveListClient(userID, conn)
			h.recordWSError("list", err)
		}
	}
}

func (h *Hub) recordWSError(kind string, err error) {
	observability.IncWSEvent(kind, "ws_error")
	if h.collector != nil {
		h.collector.CaptureError("ws.write", err, map[string]any{"kind": kind})
	}
}
