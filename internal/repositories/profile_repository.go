package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

const profileColumns = `user_id, display_name, email, profile_image_url, bio, created_at, updated_at`

// ProfileRepository reads and lazily bootstraps user profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (models.UserProfile, error)
	GetProfiles(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error)
	EnsureProfile(ctx context.Context, userID, displayName, email string) (models.UserProfile, error)
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}

// ProfileRepo is the sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetProfile fetches one profile.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.GetContext(ctx, &profile,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.UserProfile{}, classify("profiles.get", err)
	}
	return profile, nil
}

// GetProfiles fetches many profiles in one query, keyed by user id. Absent
// users are simply missing from the map.
func (r *ProfileRepo) GetProfiles(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error) {
	result := make(map[string]models.UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var profiles []models.UserProfile
	err := r.db.SelectContext(ctx, &profiles,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ANY($1)`,
		pq.Array(userIDs))
	if err != nil {
		return nil, classify("profiles.bulk", err)
	}
	for _, p := range profiles {
		result[p.UserID] = p
	}
	return result, nil
}

// EnsureProfile returns the user's profile, creating a minimal one from the
// session identity when absent.
func (r *ProfileRepo) EnsureProfile(ctx context.Context, userID, displayName, email string) (models.UserProfile, error) {
	profile, err := r.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return models.UserProfile{}, err
	}

	if displayName == "" {
		displayName = models.UnknownUserName
	}
	var emailVal *string
	if email != "" {
		emailVal = &email
	}
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO user_profiles (user_id, display_name, email) VALUES ($1, $2, $3)
         ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
         RETURNING `+profileColumns,
		userID, displayName, emailVal).StructScan(&profile)
	if err != nil {
		return models.UserProfile{}, classify("profiles.ensure", err)
	}
	return profile, nil
}

// FindUserIDByEmail resolves a user id from an email address.
func (r *ProfileRepo) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	var userID string
	err := r.db.GetContext(ctx, &userID,
		`SELECT user_id FROM user_profiles WHERE email=$1 LIMIT 1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrProfileNotFound
	}
	if err != nil {
		return "", classify("profiles.by_email", err)
	}
	return userID, nil
}
