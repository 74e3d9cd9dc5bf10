package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
	"messaging-service/internal/storage"
)

const maxAttachmentSize = 25 << 20 // 25 MiB

// AttachmentHandler manages file uploads and downloads for conversations.
type AttachmentHandler struct {
	store         *storage.AttachmentStore
	conversations repositories.ConversationRepository
}

// NewAttachmentHandler builds an AttachmentHandler.
func NewAttachmentHandler(store *storage.AttachmentStore, conversations repositories.ConversationRepository) *AttachmentHandler {
	return &AttachmentHandler{store: store, conversations: conversations}
}

// Upload stores a multipart file for a conversation the caller belongs to
// and returns the attachment descriptor to embed in a message.
func (h *AttachmentHandler) Upload(c *gin.Context) {
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

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxAttachmentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	attachment, err := h.store.Upload(c.Request.Context(), userID, conversationID, fileHeader.Filename, mimeType, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusCreated, attachment)
}

// Download streams an attachment to a member of its conversation.
func (h *AttachmentHandler) Download(c *gin.Context) {
	attachmentID := c.Param("id")
	userID := userIDFromContext(c)

	conversationID, err := h.store.ConversationID(c.Request.Context(), attachmentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
		return
	}
	if conversationID != "" {
		member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
			return
		}
	}

	stream, attachment, err := h.store.Download(c.Request.Context(), attachmentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
		return
	}
	defer stream.Close()

	c.Header("Content-Disposition", `inline; filename="`+attachment.Filename+`"`)
	c.DataFromReader(http.StatusOK, attachment.Size, attachment.MimeType, stream, nil)
}
