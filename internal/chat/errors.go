package chat

import "errors"

var (
	// ErrEmptyMessage rejects a send with no text.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrSessionClosed rejects an operation on a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrNotParticipant rejects an operation by a user outside the session.
	ErrNotParticipant = errors.New("user is not a session participant")
	// ErrNoAgentAvailable reports that no support agent exists to assign.
	ErrNoAgentAvailable = errors.New("no support agent available")
)
