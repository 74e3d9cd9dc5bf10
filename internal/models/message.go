package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// Message content written in place of a deleted message.
const DeletedMessageContent = "This message was deleted"

// Message type values accepted by the channel.
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeImage  = "image"
	MessageTypeVoice  = "voice"
	MessageTypeVideo  = "video"
	MessageTypeSystem = "system"
)

// Message is a single conversation message row.
type Message struct {
	ID             string         `db:"id" json:"id"`
	ConversationID string         `db:"conversation_id" json:"conversation_id"`
	SenderID       string         `db:"sender_id" json:"sender_id"`
	Content        string         `db:"content" json:"content"`
	MessageType    string         `db:"message_type" json:"message_type"`
	Attachments    types.JSONText `db:"attachments" json:"attachments,omitempty"`
	ReplyToID      *string        `db:"reply_to_id" json:"reply_to_id,omitempty"`
	ReadBy         pq.StringArray `db:"read_by" json:"read_by"`
	IsEdited       bool           `db:"is_edited" json:"is_edited"`
	EditedAt       *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	IsDeleted      bool           `db:"is_deleted" json:"is_deleted"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// MessageWithSender joins a message with the denormalized sender display
// fields resolved from user_profiles.
type MessageWithSender struct {
	Message
	SenderName   string `json:"sender_name"`
	SenderAvatar string `json:"sender_avatar,omitempty"`
}

// MessageEvent is broadcast through websockets for a conversation.
type MessageEvent struct {
	Type      string             `json:"type"`
	Message   *MessageWithSender `json:"message,omitempty"`
	MessageID string             `json:"message_id,omitempty"`
}
