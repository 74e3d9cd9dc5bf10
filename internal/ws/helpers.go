package ws

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newConnID issues the per-socket identifier that keys hub membership. Two
// sockets from the same user must never share one, so an entropy failure
// falls back to a timestamped id rather than an empty string.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("conn-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
