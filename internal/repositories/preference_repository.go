package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const preferenceColumns = `user_id, session_reminders, connection_requests, new_messages,
    weekly_digest, mentorship_updates, system_notifications, frequency, unsubscribed, updated_at`

// PreferenceRepository manages email preferences and the send log.
type PreferenceRepository interface {
	GetOrCreate(ctx context.Context, userID string) (models.EmailPreferences, error)
	Save(ctx context.Context, prefs models.EmailPreferences) error
	SetUnsubscribed(ctx context.Context, userID string, unsubscribed bool) error
	LogEmail(ctx context.Context, userID, templateID, messageID string) error
}

// PreferenceRepo is the sqlx implementation of PreferenceRepository.
type PreferenceRepo struct {
	db *sqlx.DB
}

// NewPreferenceRepo constructs a PreferenceRepo.
func NewPreferenceRepo(db *sqlx.DB) *PreferenceRepo {
	return &PreferenceRepo{db: db}
}

// GetOrCreate returns the user's preferences, inserting all-enabled defaults
// on first read.
func (r *PreferenceRepo) GetOrCreate(ctx context.Context, userID string) (models.EmailPreferences, error) {
	var prefs models.EmailPreferences
	err := r.db.GetContext(ctx, &prefs,
		`SELECT `+preferenceColumns+` FROM user_email_preferences WHERE user_id=$1`, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.EmailPreferences{}, classify("preferences.get", err)
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO user_email_preferences (user_id) VALUES ($1)
         ON CONFLICT (user_id) DO UPDATE SET updated_at = user_email_preferences.updated_at
         RETURNING `+preferenceColumns, userID).StructScan(&prefs)
	if err != nil {
		return models.EmailPreferences{}, classify("preferences.create", err)
	}
	return prefs, nil
}

// Save upserts the full preference record.
func (r *PreferenceRepo) Save(ctx context.Context, prefs models.EmailPreferences) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_email_preferences
            (user_id, session_reminders, connection_requests, new_messages, weekly_digest,
             mentorship_updates, system_notifications, frequency, unsubscribed, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
         ON CONFLICT (user_id) DO UPDATE SET
            session_reminders = EXCLUDED.session_reminders,
            connection_requests = EXCLUDED.connection_requests,
            new_messages = EXCLUDED.new_messages,
            weekly_digest = EXCLUDED.weekly_digest,
            mentorship_updates = EXCLUDED.mentorship_updates,
            system_notifications = EXCLUDED.system_notifications,
            frequency = EXCLUDED.frequency,
            unsubscribed = EXCLUDED.unsubscribed,
            updated_at = NOW()`,
		prefs.UserID, prefs.SessionReminders, prefs.ConnectionRequests, prefs.NewMessages,
		prefs.WeeklyDigest, prefs.MentorshipUpdates, prefs.SystemNotifications,
		prefs.Frequency, prefs.Unsubscribed)
	return classify("preferences.save", err)
}

// SetUnsubscribed flips the global unsubscribe flag.
func (r *PreferenceRepo) SetUnsubscribed(ctx context.Context, userID string, unsubscribed bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_email_preferences (user_id, unsubscribed) VALUES ($1, $2)
         ON CONFLICT (user_id) DO UPDATE SET unsubscribed = EXCLUDED.unsubscribed, updated_at = NOW()`,
		userID, unsubscribed)
	return classify("preferences.unsubscribe", err)
}

// LogEmail records a successful send.
func (r *PreferenceRepo) LogEmail(ctx context.Context, userID, templateID, messageID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_logs (user_id, template_id, message_id) VALUES ($1, $2, $3)`,
		userID, templateID, messageID)
	return classify("preferences.log_email", err)
}
