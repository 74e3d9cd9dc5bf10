package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            title TEXT,
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            max_participants INT NOT NULL DEFAULT 2,
            admin_user_id TEXT,
            direct_key TEXT,
            is_archived BOOLEAN NOT NULL DEFAULT FALSE,
            is_muted BOOLEAN NOT NULL DEFAULT FALSE,
            is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
            is_starred BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            deleted_at TIMESTAMPTZ,
            deleted_by TEXT
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS conversations_direct_key_idx
            ON conversations (direct_key) WHERE is_group = FALSE AND direct_key IS NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (conversation_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            content TEXT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'text',
            attachments JSONB,
            reply_to_id UUID,
            read_by TEXT[] NOT NULL DEFAULT '{}',
            is_edited BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMPTZ,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
            ON messages (conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
            user_id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL,
            email TEXT,
            profile_image_url TEXT,
            bio TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS user_profiles_email_idx ON user_profiles (email);`,
		`CREATE TABLE IF NOT EXISTS user_email_preferences (
            user_id TEXT PRIMARY KEY,
            session_reminders BOOLEAN NOT NULL DEFAULT TRUE,
            connection_requests BOOLEAN NOT NULL DEFAULT TRUE,
            new_messages BOOLEAN NOT NULL DEFAULT TRUE,
            weekly_digest BOOLEAN NOT NULL DEFAULT TRUE,
            mentorship_updates BOOLEAN NOT NULL DEFAULT TRUE,
            system_notifications BOOLEAN NOT NULL DEFAULT TRUE,
            frequency TEXT NOT NULL DEFAULT 'immediate',
            unsubscribed BOOLEAN NOT NULL DEFAULT FALSE,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS email_logs (
            id BIGSERIAL PRIMARY KEY,
            user_id TEXT NOT NULL,
            template_id TEXT NOT NULL,
            message_id TEXT NOT NULL,
            sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
