package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/middleware"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.ContextUserID); ok {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

func displayNameFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.ContextDisplayName); ok {
		if name, ok := val.(string); ok {
			return name
		}
	}
	return ""
}

func emailFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.ContextEmail); ok {
		if email, ok := val.(string); ok {
			return email
		}
	}
	return ""
}
