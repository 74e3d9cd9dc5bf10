package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"

	"messaging-service/internal/fanout"
	"messaging-service/internal/mailer"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	defaultSearchLimit  = 20
)

// MessageHandler manages the message channel endpoints.
type MessageHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	profiles      repositories.ProfileRepository
	bus           *fanout.Bus
	mailer        *mailer.Service
	collector     *telemetry.Collector
}

// NewMessageHandler builds a MessageHandler. The mailer and collector may be
// nil; email notification and telemetry are then skipped.
func NewMessageHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, profiles repositories.ProfileRepository, bus *fanout.Bus, mailerService *mailer.Service, collector *telemetry.Collector) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		bus:           bus,
		mailer:        mailerService,
		collector:     collector,
	}
}

func (h *MessageHandler) captureError(operation string, err error, fields map[string]any) {
	if h.collector != nil {
		h.collector.CaptureError(operation, err, fields)
	}
}

func (h *MessageHandler) requireMembership(c *gin.Context, conversationID, userID string) bool {
	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return false
	}
	return true
}

// GetMessages returns the most recent messages of a conversation, oldest
// first, with sender display fields resolved.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := userIDFromContext(c)
	if !h.requireMembership(c, conversationID, userID) {
		return
	}

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed > maxMessageLimit {
			parsed = maxMessageLimit
		}
		limit = parsed
	}

	msgs, err := h.messages.GetMessages(c.Request.Context(), conversationID, limit)
	if err != nil {
		h.captureError("messages.get", err, map[string]any{
			"conversation_id": conversationID,
			"request_id":      requestIDFromContext(c),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": h.withSenders(c.Request.Context(), msgs)})
}

// withSenders resolves sender display fields for a batch of messages. Missing
// profiles degrade to the placeholder name.
func (h *MessageHandler) withSenders(ctx context.Context, msgs []models.Message) []models.MessageWithSender {
	senderIDs := make([]string, 0, len(msgs))
	seen := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	profiles, err := h.profiles.GetProfiles(ctx, senderIDs)
	if err != nil {
		h.captureError("messages.senders", err, nil)
		profiles = map[string]models.UserProfile{}
	}

	result := make([]models.MessageWithSender, 0, len(msgs))
	for _, m := range msgs {
		enriched := models.MessageWithSender{Message: m, SenderName: models.UnknownUserName}
		if profile, ok := profiles[m.SenderID]; ok {
			enriched.SenderName = profile.DisplayName
			if profile.ProfileImageURL != nil {
				enriched.SenderAvatar = *profile.ProfileImageURL
			}
		}
		result = append(result, enriched)
	}
	return result
}

// PostMessage stores a message, bumps conversation activity, publishes the
// change event and notifies offline recipients by email.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := userIDFromContext(c)

	if _, err := h.conversations.GetConversation(c.Request.Context(), conversationID); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	if !h.requireMembership(c, conversationID, userID) {
		return
	}

	var req struct {
		Content     string         `json:"content"`
		MessageType string         `json:"message_type"`
		Attachments types.JSONText `json:"attachments"`
		ReplyToID   *string        `json:"reply_to_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is required"})
		return
	}

	// The sender's profile is bootstrapped from the session identity so the
	// fan-out enrichment has a row to resolve. A send without a sender row
	// must not land, so a bootstrap failure aborts before the insert.
	profile, err := h.profiles.EnsureProfile(c.Request.Context(), userID, displayNameFromContext(c), emailFromContext(c))
	if err != nil {
		h.captureError("messages.ensure_profile", err, map[string]any{"user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize profile"})
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), repositories.NewMessage{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		Attachments:    req.Attachments,
		ReplyToID:      req.ReplyToID,
	})
	if err != nil {
		h.captureError("messages.create", err, map[string]any{
			"conversation_id": conversationID,
			"user_id":         userID,
			"request_id":      requestIDFromContext(c),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	observability.IncMessageSent(msg.MessageType)

	// Activity bump is best-effort; the message is already stored.
	if err := h.conversations.TouchLastMessage(c.Request.Context(), conversationID); err != nil {
		h.captureError("messages.touch", err, map[string]any{"conversation_id": conversationID})
	}

	h.bus.Publish(fanout.Event{
		Table:          fanout.TableMessages,
		Action:         fanout.ActionInsert,
		ConversationID: conversationID,
		MessageID:      msg.ID,
	})

	enriched := models.MessageWithSender{Message: msg, SenderName: profile.DisplayName}
	if profile.ProfileImageURL != nil {
		enriched.SenderAvatar = *profile.ProfileImageURL
	}

	if h.mailer != nil {
		go h.notifyRecipients(conversationID, userID, enriched)
	}

	c.JSON(http.StatusCreated, enriched)
}

func (h *MessageHandler) notifyRecipients(conversationID, senderID string, msg models.MessageWithSender) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	participants, err := h.conversations.Participants(ctx, conversationID)
	if err != nil {
		h.captureError("messages.notify_participants", err, map[string]any{"conversation_id": conversationID})
		return
	}
	recipientIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.UserID != senderID {
			recipientIDs = append(recipientIDs, p.UserID)
		}
	}
	h.mailer.NotifyNewMessage(ctx, msg, recipientIDs)
}

// EditMessage replaces content on a message the caller authored. A message
// that is absent or authored by someone else reads the same from outside.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	messageID := c.Param("message_id")
	userID := userIDFromContext(c)
	if !h.requireMembership(c, conversationID, userID) {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edited, err := h.messages.EditMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		h.captureError("messages.edit", err, map[string]any{"message_id": messageID, "user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	if !edited {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	h.bus.Publish(fanout.Event{
		Table:          fanout.TableMessages,
		Action:         fanout.ActionUpdate,
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	c.Status(http.StatusNoContent)
}

// DeleteMessage tombstones a message the caller authored.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	messageID := c.Param("message_id")
	userID := userIDFromContext(c)
	if !h.requireMembership(c, conversationID, userID) {
		return
	}

	deleted, err := h.messages.DeleteMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		h.captureError("messages.delete", err, map[string]any{"message_id": messageID, "user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	h.bus.Publish(fanout.Event{
		Table:          fanout.TableMessages,
		Action:         fanout.ActionUpdate,
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	c.Status(http.StatusNoContent)
}

// MarkRead records the caller in the message's read set.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	messageID := c.Param("message_id")
	userID := userIDFromContext(c)
	if !h.requireMembership(c, conversationID, userID) {
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), messageID, userID); err != nil {
		h.captureError("messages.mark_read", err, map[string]any{"message_id": messageID, "user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	c.Status(http.StatusNoContent)
}

// Search finds matching messages across every conversation the caller
// belongs to.
func (h *MessageHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed > maxMessageLimit {
			parsed = maxMessageLimit
		}
		limit = parsed
	}

	userID := userIDFromContext(c)
	summaries, err := h.conversations.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	conversationIDs := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		conversationIDs = append(conversationIDs, summary.ID)
	}

	msgs, err := h.messages.SearchMessages(c.Request.Context(), conversationIDs, query, limit)
	if err != nil {
		h.captureError("messages.search", err, map[string]any{"user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": h.withSenders(c.Request.Context(), msgs)})
}
