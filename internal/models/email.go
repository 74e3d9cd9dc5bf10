package models

import "time"

// Email delivery frequency values.
const (
	FrequencyImmediate = "immediate"
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
)

// EmailPreferences holds a user's per-type notification toggles. The global
// Unsubscribed flag supersedes every individual toggle.
type EmailPreferences struct {
	UserID              string    `db:"user_id" json:"user_id"`
	SessionReminders    bool      `db:"session_reminders" json:"session_reminders"`
	ConnectionRequests  bool      `db:"connection_requests" json:"connection_requests"`
	NewMessages         bool      `db:"new_messages" json:"new_messages"`
	WeeklyDigest        bool      `db:"weekly_digest" json:"weekly_digest"`
	MentorshipUpdates   bool      `db:"mentorship_updates" json:"mentorship_updates"`
	SystemNotifications bool      `db:"system_notifications" json:"system_notifications"`
	Frequency           string    `db:"frequency" json:"frequency"`
	Unsubscribed        bool      `db:"unsubscribed" json:"unsubscribed"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultEmailPreferences returns the all-enabled defaults created on first
// read for a user without a preference row.
func DefaultEmailPreferences(userID string) EmailPreferences {
	return EmailPreferences{
		UserID:              userID,
		SessionReminders:    true,
		ConnectionRequests:  true,
		NewMessages:         true,
		WeeklyDigest:        true,
		MentorshipUpdates:   true,
		SystemNotifications: true,
		Frequency:           FrequencyImmediate,
	}
}

// EmailLog records a successful send. Write-only from this service.
type EmailLog struct {
	ID         int64     `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	TemplateID string    `db:"template_id" json:"template_id"`
	MessageID  string    `db:"message_id" json:"message_id"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}
