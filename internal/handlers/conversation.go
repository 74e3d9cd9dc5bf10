package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/fanout"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ConversationHandler manages the conversation directory endpoints.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	profiles      repositories.ProfileRepository
	bus           *fanout.Bus
	collector     *telemetry.Collector
}

// NewConversationHandler builds a ConversationHandler. The collector may be
// nil in tests.
func NewConversationHandler(conversations repositories.ConversationRepository, profiles repositories.ProfileRepository, bus *fanout.Bus, collector *telemetry.Collector) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		profiles:      profiles,
		bus:           bus,
		collector:     collector,
	}
}

func (h *ConversationHandler) captureError(operation string, err error, fields map[string]any) {
	if h.collector != nil {
		h.collector.CaptureError(operation, err, fields)
	}
}

// ListConversations returns the caller's conversations with participant
// display info resolved in one batch.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := userIDFromContext(c)

	summaries, err := h.conversations.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.captureError("conversations.list", err, map[string]any{
			"user_id":    userID,
			"request_id": requestIDFromContext(c),
		})
		var listErr *repositories.ConversationListError
		if errors.As(err, &listErr) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": repositories.UserMessage(listErr.Err), "retryable": true,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}

	participantIDs := make([]string, 0, len(summaries)*2)
	seen := map[string]struct{}{}
	for _, summary := range summaries {
		for _, p := range summary.Participants {
			if _, ok := seen[p.UserID]; !ok {
				seen[p.UserID] = struct{}{}
				participantIDs = append(participantIDs, p.UserID)
			}
		}
	}

	profiles, err := h.profiles.GetProfiles(c.Request.Context(), participantIDs)
	if err != nil {
		// Listing still works without display names.
		h.captureError("conversations.list_profiles", err, map[string]any{"user_id": userID})
		profiles = map[string]models.UserProfile{}
	}

	type participantResponse struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar,omitempty"`
	}
	type conversationResponse struct {
		models.ConversationSummary
		Members []participantResponse `json:"members"`
	}

	responses := make([]conversationResponse, 0, len(summaries))
	for _, summary := range summaries {
		members := make([]participantResponse, 0, len(summary.Participants))
		for _, p := range summary.Participants {
			member := participantResponse{UserID: p.UserID, DisplayName: models.UnknownUserName}
			if profile, ok := profiles[p.UserID]; ok {
				member.DisplayName = profile.DisplayName
				if profile.ProfileImageURL != nil {
					member.Avatar = *profile.ProfileImageURL
				}
			}
			members = append(members, member)
		}
		responses = append(responses, conversationResponse{ConversationSummary: summary, Members: members})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": responses})
}

// StartDirectConversation creates or returns the existing 1:1 conversation
// between the caller and another user.
func (h *ConversationHandler) StartDirectConversation(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	conversationID, err := h.conversations.GetOrCreateDirectConversation(c.Request.Context(), userID, req.UserID)
	if err != nil {
		h.captureError("conversations.start_direct", err, map[string]any{
			"user_id":    userID,
			"peer_id":    req.UserID,
			"request_id": requestIDFromContext(c),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}

	h.bus.Publish(fanout.Event{Table: fanout.TableConversations, Action: fanout.ActionInsert, ConversationID: conversationID})
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID})
}

// CreateGroupConversation creates a group with the caller as admin.
func (h *ConversationHandler) CreateGroupConversation(c *gin.Context) {
	var req struct {
		Title           string   `json:"title" binding:"required"`
		MemberIDs       []string `json:"member_ids" binding:"required"`
		MaxParticipants int      `json:"max_participants"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	conv, err := h.conversations.CreateGroupConversation(c.Request.Context(), userID, req.Title, req.MemberIDs, req.MaxParticipants)
	if err != nil {
		h.captureError("conversations.create_group", err, map[string]any{
			"user_id":    userID,
			"request_id": requestIDFromContext(c),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}

	h.bus.Publish(fanout.Event{Table: fanout.TableConversations, Action: fanout.ActionInsert, ConversationID: conv.ID})
	c.JSON(http.StatusCreated, conv)
}

// UpdateFlags toggles the caller's archive/mute/pin/star flags on a
// conversation they belong to.
func (h *ConversationHandler) UpdateFlags(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := userIDFromContext(c)

	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	var flags models.ConversationFlags
	if err := c.ShouldBindJSON(&flags); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversations.UpdateFlags(c.Request.Context(), conversationID, flags); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		h.captureError("conversations.update_flags", err, map[string]any{
			"conversation_id": conversationID,
			"user_id":         userID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}

	h.bus.Publish(fanout.Event{Table: fanout.TableConversations, Action: fanout.ActionUpdate, ConversationID: conversationID})
	c.Status(http.StatusNoContent)
}
