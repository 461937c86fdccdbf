package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"livechat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, sessionID, senderID, recipientID int, text string) (models.ChatMessage, error)
	ListSessionMessages(ctx context.Context, sessionID int) ([]models.ChatMessage, error)
	GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error)
	MarkRead(ctx context.Context, sessionID, readerID int) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message to a session. Insertion order is the
// within-session delivery order.
func (r *MessageRepo) CreateMessage(ctx context.Context, sessionID, senderID, recipientID int, text string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO chat_messages (session_id, sender_id, recipient_id, text)
         VALUES ($1, $2, $3, $4)
         RETURNING id, session_id, sender_id, recipient_id, text, is_read, created_at, updated_at`,
		sessionID, senderID, recipientID, text).
		StructScan(&msg)
	return msg, err
}

// ListSessionMessages returns the session's messages in insertion order.
func (r *MessageRepo) ListSessionMessages(ctx context.Context, sessionID int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, session_id, sender_id, recipient_id, text, is_read, created_at, updated_at
         FROM chat_messages WHERE session_id=$1 ORDER BY id ASC`, sessionID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, session_id, sender_id, recipient_id, text, is_read, created_at, updated_at
         FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkRead flips is_read on every unread message in the session that the
// reader did not send. The predicate only ever moves is_read false to true.
func (r *MessageRepo) MarkRead(ctx context.Context, sessionID, readerID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_messages SET is_read=TRUE, updated_at=NOW()
         WHERE session_id=$1 AND sender_id<>$2 AND is_read=FALSE`, sessionID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
