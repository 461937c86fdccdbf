package models

import "time"

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	StatusActive   SessionStatus = "active"
	StatusArchived SessionStatus = "archived"
	StatusClosed   SessionStatus = "closed"
)

// ChatSession represents a support conversation between a customer and an agent.
// Participants are stored in a side table and hydrated into SessionView.
type ChatSession struct {
	ID        int           `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Status    SessionStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Closed reports whether the session no longer accepts messages.
func (s ChatSession) Closed() bool {
	return s.Status == StatusClosed
}

// SessionView is the full snapshot of a session pushed to clients: the session
// plus hydrated participants and its ordered message history. Clients always
// receive complete snapshots, never deltas.
type SessionView struct {
	ChatSession
	Participants []User        `json:"participants"`
	Messages     []ChatMessage `json:"messages"`
}
