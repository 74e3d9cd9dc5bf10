package models

import "time"

// Display name used when a sender has no profile row.
const UnknownUserName = "Unknown User"

// UserProfile is the denormalized profile view consumed by messaging.
// A profile may not exist yet for a freshly registered user.
type UserProfile struct {
	UserID          string    `db:"user_id" json:"user_id"`
	DisplayName     string    `db:"display_name" json:"display_name"`
	Email           *string   `db:"email" json:"email,omitempty"`
	ProfileImageURL *string   `db:"profile_image_url" json:"profile_image_url,omitempty"`
	Bio             *string   `db:"bio" json:"bio,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
