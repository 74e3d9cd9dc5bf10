package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/fanout"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// ConversationWebSocketHandler bridges fanout subscriptions to websocket
// rooms. The first client of a room installs the adapter subscription; the
// last one leaving tears it down.
type ConversationWebSocketHandler struct {
	hub              *Hub
	conversationRepo repositories.ConversationRepository
	adapter          *fanout.Adapter
	jwtSecret        []byte
}

// NewConversationWebSocketHandler constructs the handler.
func NewConversationWebSocketHandler(hub *Hub, conversationRepo repositories.ConversationRepository, adapter *fanout.Adapter, jwtSecret []byte) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{
		hub:              hub,
		conversationRepo: conversationRepo,
		adapter:          adapter,
		jwtSecret:        jwtSecret,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleConversation serves GET /ws/conversations/:conversation_id.
func (h *ConversationWebSocketHandler) HandleConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	member, err := h.conversationRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	if h.hub.AddConversationClient(conversationID, conn, info) == 1 {
		h.adapter.SubscribeToConversation(conversationID,
			func(msg models.MessageWithSender) { h.hub.BroadcastNewMessage(conversationID, msg) },
			func(msg models.MessageWithSender) { h.hub.BroadcastMessageUpdate(conversationID, msg) },
		)
	}
	observability.IncWSActive("conversation")
	observability.IncWSEvent("conversation", "ws_connect")

	go func() {
		defer func() {
			if h.hub.RemoveConversationClient(conversationID, conn) == 0 {
				h.adapter.UnsubscribeFromConversation(conversationID)
			}
			observability.DecWSActive("conversation")
			observability.IncWSEvent("conversation", "ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("conversation", "ws_error")
				}
				return
			}
		}
	}()
}

// HandleConversationList serves GET /ws/conversations, streaming coarse
// conversation-list refreshes to the authenticated user.
func (h *ConversationWebSocketHandler) HandleConversationList(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		ConnectedAt: time.Now(),
	}

	if h.hub.AddListClient(userID, conn, info) == 1 {
		h.adapter.SubscribeToConversations(userID, func(summaries []models.ConversationSummary) {
			h.hub.BroadcastConversationList(userID, summaries)
		})
	}
	observability.IncWSActive("list")
	observability.IncWSEvent("list", "ws_connect")

	go func() {
		defer func() {
			if h.hub.RemoveListClient(userID, conn) == 0 {
				h.adapter.UnsubscribeFromConversations(userID)
			}
			observability.DecWSActive("list")
			observability.IncWSEvent("list", "ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// authenticate accepts the token in the Authorization header or a token
// query parameter (browser websocket clients cannot set headers).
func (h *ConversationWebSocketHandler) authenticate(c *gin.Context) (string, bool) {
	token := c.GetHeader("Authorization")
	if token != "" {
		parts := strings.SplitN(token, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	} else {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return "", false
	}

	claims, err := middleware.ParseToken(h.jwtSecret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return "", false
	}
	return claims.Subject, true
}
