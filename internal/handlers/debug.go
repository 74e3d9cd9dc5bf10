package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/telemetry"
)

var errDebugTest = errors.New("synthetic failure for telemetry verification")

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, collector *telemetry.Collector, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/telemetry-test", func(c *gin.Context) {
		if collector == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "collector not configured"})
			return
		}
		collector.Breadcrumb("debug", "telemetry test requested")
		collector.CaptureError("debug.test", errDebugTest, map[string]any{
			"request_id": requestIDFromContext(c),
			"user_id":    userIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
