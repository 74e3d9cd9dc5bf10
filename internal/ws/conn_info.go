package ws

import "time"

// ConnInfo describes one websocket connection for telemetry.
type ConnInfo struct {
	ConnID      string
	UserID      string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
