package models

import "time"

// Conversation is a direct or group conversation row.
type Conversation struct {
	ID              string     `db:"id" json:"id"`
	Title           *string    `db:"title" json:"title,omitempty"`
	IsGroup         bool       `db:"is_group" json:"is_group"`
	MaxParticipants int        `db:"max_participants" json:"max_participants"`
	AdminUserID     *string    `db:"admin_user_id" json:"admin_user_id,omitempty"`
	DirectKey       *string    `db:"direct_key" json:"-"`
	IsArchived      bool       `db:"is_archived" json:"is_archived"`
	IsMuted         bool       `db:"is_muted" json:"is_muted"`
	IsPinned        bool       `db:"is_pinned" json:"is_pinned"`
	IsStarred       bool       `db:"is_starred" json:"is_starred"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	LastMessageAt   time.Time  `db:"last_message_at" json:"last_message_at"`
	DeletedAt       *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy       *string    `db:"deleted_by" json:"deleted_by,omitempty"`
}

// Participant is a membership row joining a user to a conversation.
type Participant struct {
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
}

// ConversationSummary is the API-facing view of a conversation for one user.
// Participants may be empty when the membership lookup degraded.
type ConversationSummary struct {
	Conversation
	ParticipantCount int           `json:"participant_count"`
	Participants     []Participant `json:"participants"`
}

// ConversationFlags carries the per-conversation toggles a member may update.
// Nil fields are left unchanged.
type ConversationFlags struct {
	Archived *bool `json:"archived,omitempty"`
	Muted    *bool `json:"muted,omitempty"`
	Pinned   *bool `json:"pinned,omitempty"`
	Starred  *bool `json:"starred,omitempty"`
}

// ConversationListEvent is broadcast through websockets when a user's
// conversation listing changes.
type ConversationListEvent struct {
	Type          string                `json:"type"`
	Conversations []ConversationSummary `json:"conversations"`
}
