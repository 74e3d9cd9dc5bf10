package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

const messageColumns = `id, conversation_id, sender_id, content, message_type, attachments,
    reply_to_id, read_by, is_edited, edited_at, is_deleted, created_at`

// NewMessage is the input to CreateMessage.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
	MessageType    string
	Attachments    types.JSONText
	ReplyToID      *string
}

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	CreateMessage(ctx context.Context, input NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	EditMessage(ctx context.Context, messageID, senderID, content string) (bool, error)
	DeleteMessage(ctx context.Context, messageID, senderID string) (bool, error)
	SearchMessages(ctx context.Context, conversationIDs []string, query string, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) error
}

// MessageRepo is the sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// GetMessages returns the most recent `limit` messages of a conversation,
// ordered oldest first. An empty result is a valid outcome.
func (r *MessageRepo) GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + ` FROM messages
            WHERE conversation_id=$1
            ORDER BY created_at DESC
            LIMIT $2
        ) recent ORDER BY created_at ASC`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID, limit); err != nil {
		return nil, classify("messages.get", err)
	}
	return msgs, nil
}

// CreateMessage inserts a message and returns the stored row. The store
// assigns id and created_at.
func (r *MessageRepo) CreateMessage(ctx context.Context, input NewMessage) (models.Message, error) {
	if input.MessageType == "" {
		input.MessageType = models.MessageTypeText
	}
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, message_type, attachments, reply_to_id)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		input.ConversationID, input.SenderID, input.Content, input.MessageType,
		input.Attachments, input.ReplyToID).StructScan(&msg)
	if err != nil {
		return models.Message{}, classify("messages.create", err)
	}
	return msg, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if err != nil {
		if KindOf(classify("messages.get_one", err)) == KindNotFound {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, classify("messages.get_one", err)
	}
	return msg, nil
}

// EditMessage replaces the content of a message the sender authored. A false
// result covers both "absent" and "not the author"; the predicate does not
// distinguish them.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID, senderID, content string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content=$3, is_edited=TRUE, edited_at=NOW()
         WHERE id=$1 AND sender_id=$2 AND is_deleted=FALSE`,
		messageID, senderID, content)
	if err != nil {
		return false, classify("messages.edit", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, classify("messages.edit", err)
	}
	return count > 0, nil
}

// DeleteMessage soft-deletes a message the sender authored, replacing its
// content with the fixed tombstone. The row is never physically removed.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID, senderID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content=$3, is_deleted=TRUE
         WHERE id=$1 AND sender_id=$2 AND is_deleted=FALSE`,
		messageID, senderID, models.DeletedMessageContent)
	if err != nil {
		return false, classify("messages.delete", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, classify("messages.delete", err)
	}
	return count > 0, nil
}

// SearchMessages finds non-deleted messages containing the query, scoped to
// the given conversations, most recent first.
func (r *MessageRepo) SearchMessages(ctx context.Context, conversationIDs []string, query string, limit int) ([]models.Message, error) {
	if len(conversationIDs) == 0 {
		return []models.Message{}, nil
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE conversation_id = ANY($1) AND is_deleted=FALSE AND content ILIKE '%' || $2 || '%'
         ORDER BY created_at DESC
         LIMIT $3`,
		pq.Array(conversationIDs), query, limit)
	if err != nil {
		return nil, classify("messages.search", err)
	}
	return msgs, nil
}

// MarkRead appends the user to the message's read_by set, once.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_by = array_append(read_by, $2)
         WHERE id=$1 AND NOT ($2 = ANY(read_by))`,
		messageID, userID)
	return classify("messages.mark_read", err)
}
