package models

import "time"

// ChatMessage represents one message inside a chat session.
type ChatMessage struct {
	ID          int       `db:"id" json:"id"`
	SessionID   int       `db:"session_id" json:"session_id"`
	SenderID    int       `db:"sender_id" json:"sender_id"`
	RecipientID int       `db:"recipient_id" json:"recipient_id"`
	Text        string    `db:"text" json:"text"`
	IsRead      bool      `db:"is_read" json:"is_read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
