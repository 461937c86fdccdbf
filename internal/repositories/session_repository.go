package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"livechat-service/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository abstracts chat session persistence.
type SessionRepository interface {
	CreateSession(ctx context.Context, name string, participantIDs []int) (models.ChatSession, error)
	GetSession(ctx context.Context, sessionID int) (models.ChatSession, error)
	ParticipantIDs(ctx context.Context, sessionID int) ([]int, error)
	ListForUser(ctx context.Context, userID int, activeOnly bool) ([]models.ChatSession, error)
	CountActiveForUser(ctx context.Context, userID int) (int, error)
	SetStatus(ctx context.Context, sessionID int, status models.SessionStatus) error
	Touch(ctx context.Context, sessionID int) error
}

// SessionRepo is a sqlx implementation of SessionRepository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// CreateSession inserts a session and its ordered participant set in one
// transaction.
func (r *SessionRepo) CreateSession(ctx context.Context, name string, participantIDs []int) (models.ChatSession, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatSession{}, err
	}
	defer tx.Rollback()

	var session models.ChatSession
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO chat_sessions (name, status) VALUES ($1, 'active')
         RETURNING id, name, status, created_at, updated_at`, name).
		StructScan(&session); err != nil {
		return models.ChatSession{}, err
	}

	for position, userID := range participantIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_participants (session_id, user_id, position) VALUES ($1, $2, $3)`,
			session.ID, userID, position); err != nil {
			return models.ChatSession{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.ChatSession{}, err
	}
	return session, nil
}

// GetSession fetches a session by id.
func (r *SessionRepo) GetSession(ctx context.Context, sessionID int) (models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.GetContext(ctx, &session,
		`SELECT id, name, status, created_at, updated_at FROM chat_sessions WHERE id=$1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatSession{}, ErrSessionNotFound
	}
	return session, err
}

// ParticipantIDs returns the session's participant ids in stored order.
func (r *SessionRepo) ParticipantIDs(ctx context.Context, sessionID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM session_participants WHERE session_id=$1 ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrSessionNotFound
	}
	return ids, nil
}

// ListForUser returns sessions the user participates in, newest first.
func (r *SessionRepo) ListForUser(ctx context.Context, userID int, activeOnly bool) ([]models.ChatSession, error) {
	query := `SELECT s.id, s.name, s.status, s.created_at, s.updated_at
        FROM chat_sessions s
        JOIN session_participants p ON p.session_id = s.id
        WHERE p.user_id=$1`
	if activeOnly {
		query += ` AND s.status='active'`
	}
	query += ` ORDER BY s.updated_at DESC, s.id DESC`

	var sessions []models.ChatSession
	err := r.db.SelectContext(ctx, &sessions, query, userID)
	return sessions, err
}

// CountActiveForUser counts the user's active sessions. The assignment engine
// uses this as the agent load figure.
func (r *SessionRepo) CountActiveForUser(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM chat_sessions s
         JOIN session_participants p ON p.session_id = s.id
         WHERE p.user_id=$1 AND s.status='active'`, userID)
	return count, err
}

// SetStatus updates the session lifecycle status.
func (r *SessionRepo) SetStatus(ctx context.Context, sessionID int, status models.SessionStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET status=$2, updated_at=NOW() WHERE id=$1`, sessionID, status)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Touch bumps the session's updated_at after a message append or read receipt.
func (r *SessionRepo) Touch(ctx context.Context, sessionID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at=NOW() WHERE id=$1`, sessionID)
	return err
}
