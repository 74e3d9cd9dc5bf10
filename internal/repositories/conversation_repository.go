package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const conversationColumns = `id, title, is_group, max_participants, admin_user_id, direct_key,
    is_archived, is_muted, is_pinned, is_starred, created_at, last_message_at, deleted_at, deleted_by`

// ConversationListError wraps a failure of the primary conversation listing
// query. Callers should offer a retry.
type ConversationListError struct {
	Err error
}

func (e *ConversationListError) Error() string {
	return fmt.Sprintf("list conversations: %v", e.Err)
}

func (e *ConversationListError) Unwrap() error { return e.Err }

// ConversationRepository abstracts conversation and membership persistence.
type ConversationRepository interface {
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	GetOrCreateDirectConversation(ctx context.Context, userA, userB string) (string, error)
	CreateGroupConversation(ctx context.Context, adminID, title string, memberIDs []string, maxParticipants int) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	Participants(ctx context.Context, conversationID string) ([]models.Participant, error)
	UpdateFlags(ctx context.Context, conversationID string, flags models.ConversationFlags) error
	TouchLastMessage(ctx context.Context, conversationID string) error
}

// ConversationRepo is the sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// ListConversations returns the user's conversations, newest activity first.
// A failed membership lookup degrades that conversation to an empty
// participant list instead of failing the whole listing.
func (r *ConversationRepo) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.title, c.is_group, c.max_participants, c.admin_user_id, c.direct_key,
            c.is_archived, c.is_muted, c.is_pinned, c.is_starred, c.created_at, c.last_message_at,
            c.deleted_at, c.deleted_by
        FROM conversations c
        INNER JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id = $1 AND c.deleted_at IS NULL
        ORDER BY c.last_message_at DESC`

	var rows []models.Conversation
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, &ConversationListError{Err: classify("conversations.list", err)}
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	for _, conv := range rows {
		participants, err := r.Participants(ctx, conv.ID)
		if err != nil {
			log.Printf("participants lookup failed conversation=%s: %v", conv.ID, err)
			participants = []models.Participant{}
		}
		summaries = append(summaries, models.ConversationSummary{
			Conversation:     conv,
			ParticipantCount: len(participants),
			Participants:     participants,
		})
	}
	return summaries, nil
}

// GetOrCreateDirectConversation resolves the private 1:1 conversation between
// two users, creating it when absent. At most one such conversation exists
// per pair: the scan is the idempotent fast path and the canonical direct_key
// unique index settles concurrent creates.
func (r *ConversationRepo) GetOrCreateDirectConversation(ctx context.Context, userA, userB string) (string, error) {
	if userA == userB {
		return "", errors.New("cannot create conversation with self")
	}

	if id, ok, err := r.findDirectConversation(ctx, userA, userB); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	key := directKey(userA, userB)
	id, err := r.createDirectConversation(ctx, key, userA, userB)
	if err == nil {
		return id, nil
	}

	// A concurrent call from the other participant may have won the race on
	// the direct_key index; the winner's row is the answer.
	if KindOf(err) == KindConflict {
		var existing string
		lookupErr := r.db.GetContext(ctx, &existing,
			`SELECT id FROM conversations WHERE direct_key=$1 AND is_group=FALSE`, key)
		if lookupErr == nil {
			return existing, nil
		}
		return "", classify("conversations.direct_lookup", lookupErr)
	}
	return "", err
}

func (r *ConversationRepo) findDirectConversation(ctx context.Context, userA, userB string) (string, bool, error) {
	var ids []string
	query := `SELECT c.id FROM conversations c
        INNER JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id = $1 AND c.is_group = FALSE AND c.deleted_at IS NULL`
	if err := r.db.SelectContext(ctx, &ids, query, userA); err != nil {
		return "", false, classify("conversations.direct_scan", err)
	}

	want := map[string]bool{userA: true, userB: true}
	for _, id := range ids {
		participants, err := r.Participants(ctx, id)
		if err != nil {
			return "", false, err
		}
		if len(participants) != 2 {
			continue
		}
		if want[participants[0].UserID] && want[participants[1].UserID] &&
			participants[0].UserID != participants[1].UserID {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (r *ConversationRepo) createDirectConversation(ctx context.Context, key, userA, userB string) (string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", classify("conversations.create_direct", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var id string
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (is_group, max_participants, direct_key) VALUES (FALSE, 2, $1) RETURNING id`,
		key).Scan(&id)
	if err != nil {
		return "", classify("conversations.create_direct", err)
	}

	for _, userID := range []string{userA, userB} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`,
			id, userID); err != nil {
			return "", classify("conversations.create_direct_members", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", classify("conversations.create_direct", err)
	}
	return id, nil
}

// CreateGroupConversation creates a group conversation and its memberships
// atomically. The admin is always a member.
func (r *ConversationRepo) CreateGroupConversation(ctx context.Context, adminID, title string, memberIDs []string, maxParticipants int) (models.Conversation, error) {
	if maxParticipants < 2 {
		maxParticipants = 10
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, classify("conversations.create_group", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (title, is_group, max_participants, admin_user_id)
         VALUES ($1, TRUE, $2, $3) RETURNING `+conversationColumns,
		title, maxParticipants, adminID).StructScan(&conv)
	if err != nil {
		return models.Conversation{}, classify("conversations.create_group", err)
	}

	memberSet := map[string]struct{}{adminID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]string, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) > maxParticipants {
		err = fmt.Errorf("group of %d exceeds max_participants %d", len(ids), maxParticipants)
		return models.Conversation{}, err
	}

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`,
			conv.ID, id); err != nil {
			return models.Conversation{}, classify("conversations.create_group_members", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, classify("conversations.create_group", err)
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1 AND deleted_at IS NULL`,
		conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, classify("conversations.get", err)
	}
	return conv, nil
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	if err != nil {
		return false, classify("conversations.is_participant", err)
	}
	return exists, nil
}

// Participants returns the membership rows of a conversation.
func (r *ConversationRepo) Participants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT conversation_id, user_id, joined_at FROM conversation_participants
         WHERE conversation_id=$1 ORDER BY user_id`, conversationID)
	if err != nil {
		return nil, classify("conversations.participants", err)
	}
	return participants, nil
}

// UpdateFlags updates the provided toggles, leaving nil fields untouched.
func (r *ConversationRepo) UpdateFlags(ctx context.Context, conversationID string, flags models.ConversationFlags) error {
	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	add := func(column string, val *bool) {
		if val != nil {
			args = append(args, *val)
			sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
		}
	}
	add("is_archived", flags.Archived)
	add("is_muted", flags.Muted)
	add("is_pinned", flags.Pinned)
	add("is_starred", flags.Starred)
	if len(sets) == 0 {
		return nil
	}

	args = append(args, conversationID)
	query := fmt.Sprintf(`UPDATE conversations SET %s WHERE id=$%d AND deleted_at IS NULL`,
		strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify("conversations.update_flags", err)
	}
	if count, err := res.RowsAffected(); err == nil && count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// TouchLastMessage bumps the conversation's activity timestamp.
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, conversationID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at=NOW() WHERE id=$1`, conversationID)
	return classify("conversations.touch", err)
}

// directKey canonicalizes a participant pair so (A,B) and (B,A) map to the
// same key.
func directKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}
