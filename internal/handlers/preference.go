package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/mailer"
	"messaging-service/internal/repositories"
)

// PreferenceHandler manages email notification preferences.
type PreferenceHandler struct {
	preferences repositories.PreferenceRepository
	jwtSecret   []byte
}

// NewPreferenceHandler builds a PreferenceHandler.
func NewPreferenceHandler(preferences repositories.PreferenceRepository, jwtSecret []byte) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences, jwtSecret: jwtSecret}
}

// GetPreferences returns the caller's preferences, creating defaults on
// first read.
func (h *PreferenceHandler) GetPreferences(c *gin.Context) {
	userID := userIDFromContext(c)

	prefs, err := h.preferences.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// PutPreferences replaces the caller's preference record.
func (h *PreferenceHandler) PutPreferences(c *gin.Context) {
	userID := userIDFromContext(c)

	prefs, err := h.preferences.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// The record is always the caller's own, whatever the body says.
	prefs.UserID = userID

	if err := h.preferences.Save(c.Request.Context(), prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Unsubscribe handles one-click unsubscribe links from emails. The token is
// self-contained, so no session is required.
func (h *PreferenceHandler) Unsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	userID, err := mailer.ParseUnsubscribeToken(h.jwtSecret, token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired link"})
		return
	}

	if err := h.preferences.SetUnsubscribed(c.Request.Context(), userID, true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": repositories.UserMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unsubscribed": true})
}
