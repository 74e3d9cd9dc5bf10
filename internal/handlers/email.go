package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/mailer"
)

// EmailHandler exposes the email composer to trusted internal callers.
type EmailHandler struct {
	mailer *mailer.Service
}

// NewEmailHandler builds an EmailHandler.
func NewEmailHandler(mailerService *mailer.Service) *EmailHandler {
	return &EmailHandler{mailer: mailerService}
}

// SendEmail composes and dispatches one templated email.
func (h *EmailHandler) SendEmail(c *gin.Context) {
	var req struct {
		To         string            `json:"to" binding:"required,email"`
		TemplateID string            `json:"template_id" binding:"required"`
		Variables  map[string]string `json:"variables"`
		Priority   string            `json:"priority"`
		ScheduleAt *time.Time        `json:"schedule_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.mailer.SendEmail(c.Request.Context(), mailer.Options{
		To:         req.To,
		TemplateID: req.TemplateID,
		Variables:  req.Variables,
		Priority:   req.Priority,
		ScheduleAt: req.ScheduleAt,
	})
	if err != nil {
		if errors.Is(err, mailer.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown template"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "email delivery failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}
