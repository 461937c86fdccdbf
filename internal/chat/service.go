package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"livechat-service/internal/models"
	"livechat-service/internal/observability"
	"livechat-service/internal/repositories"
	"livechat-service/internal/telemetry"
)

// ErrNotConnected reports a push to a user with no live connection. Callers
// treat it as a delivery miss rather than a failure: the user picks up current
// state on their next init.
var ErrNotConnected = errors.New("user not connected")

// Pusher delivers an event payload to a user's live connection.
type Pusher interface {
	Push(userID int, event string, payload any) error
}

// Outbound event names, matching the protocol the clients already speak.
const (
	EventReceiveMessage = "receive message"
	EventMessageSeen    = "message seen"
	EventTicketClosed   = "ticket closed"
)

// Service is the live-chat engine: it persists session and message state and
// re-pushes full session snapshots to the affected participants. Every
// persistence call completes before any push attempt, so stored state never
// trails what a client was shown.
type Service struct {
	sessions repositories.SessionRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	pusher   Pusher
	assigner *Assigner
	audit    *telemetry.AuditEmitter
}

// NewService constructs the Service.
func NewService(
	sessions repositories.SessionRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	pusher Pusher,
	assigner *Assigner,
	audit *telemetry.AuditEmitter,
) *Service {
	return &Service{
		sessions: sessions,
		messages: messages,
		users:    users,
		pusher:   pusher,
		assigner: assigner,
		audit:    audit,
	}
}

// Snapshot returns the user's sessions with participants and messages
// hydrated. Customers see active sessions only; support agents pass
// activeOnly=false and see every status.
func (s *Service) Snapshot(ctx context.Context, userID int, activeOnly bool) ([]models.SessionView, error) {
	sessions, err := s.sessions.ListForUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list sessions for user %d: %w", userID, err)
	}

	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		view, err := s.buildView(ctx, session)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// SendMessage persists a message into an active session and re-pushes both
// participants' session snapshots. An offline recipient is a delivery miss,
// never an error; the stored message is not rolled back.
func (s *Service) SendMessage(ctx context.Context, senderID, sessionID int, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Closed() {
		return ErrSessionClosed
	}

	participantIDs, err := s.sessions.ParticipantIDs(ctx, sessionID)
	if err != nil {
		return err
	}
	recipientID, err := otherParticipant(participantIDs, senderID)
	if err != nil {
		return err
	}

	if _, err := s.messages.CreateMessage(ctx, sessionID, senderID, recipientID, text); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		return fmt.Errorf("touch session %d: %w", sessionID, err)
	}

	if err := s.pushSnapshot(ctx, recipientID, EventReceiveMessage, true); err != nil {
		return err
	}
	return s.pushSnapshot(ctx, senderID, EventReceiveMessage, true)
}

// RequestSupport assigns the least-loaded support agent to the customer and
// pushes the new session to both sides.
func (s *Service) RequestSupport(ctx context.Context, customerID int) error {
	session, agent, err := s.assigner.Assign(ctx, customerID)
	if err != nil {
		return err
	}

	observability.IncAssignment()
	s.audit.Emit(ctx, "INFO",
		fmt.Sprintf("session %d assigned to agent %d for customer %d", session.ID, agent.ID, customerID), "", nil)

	if err := s.pushSnapshot(ctx, customerID, EventReceiveMessage, true); err != nil {
		return err
	}
	return s.pushSnapshot(ctx, agent.ID, EventReceiveMessage, true)
}

// MarkRead flips every unread message in the session that the reader did not
// send, then pushes the updated snapshot to the other participant so their
// client reflects the read receipts.
func (s *Service) MarkRead(ctx context.Context, readerID, sessionID int) error {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return err
	}

	// resolve the reader's standing before touching any message state
	participantIDs, err := s.sessions.ParticipantIDs(ctx, sessionID)
	if err != nil {
		return err
	}
	otherID, err := otherParticipant(participantIDs, readerID)
	if err != nil {
		return err
	}

	if _, err := s.messages.MarkRead(ctx, sessionID, readerID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		return fmt.Errorf("touch session %d: %w", sessionID, err)
	}

	return s.pushSnapshot(ctx, otherID, EventMessageSeen, true)
}

// MarkDone closes the session, notifies the other participant with a terminal
// ticket-closed event, and re-pushes the closer's own session list. Closing an
// already-closed session leaves state alone but still notifies.
func (s *Service) MarkDone(ctx context.Context, closerID, sessionID int) error {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	// resolve the closer's standing before the status transition
	participantIDs, err := s.sessions.ParticipantIDs(ctx, sessionID)
	if err != nil {
		return err
	}
	otherID, err := otherParticipant(participantIDs, closerID)
	if err != nil {
		return err
	}

	if !session.Closed() {
		if err := s.sessions.SetStatus(ctx, sessionID, models.StatusClosed); err != nil {
			return err
		}
		session.Status = models.StatusClosed
		s.audit.Emit(ctx, "INFO",
			fmt.Sprintf("session %d closed by user %d", sessionID, closerID), "", nil)
	}

	view, err := s.buildView(ctx, session)
	if err != nil {
		return err
	}
	s.push(otherID, EventTicketClosed, view)

	return s.pushSnapshot(ctx, closerID, EventReceiveMessage, false)
}

func (s *Service) buildView(ctx context.Context, session models.ChatSession) (models.SessionView, error) {
	participantIDs, err := s.sessions.ParticipantIDs(ctx, session.ID)
	if err != nil {
		return models.SessionView{}, err
	}
	users, err := s.users.BulkUsers(ctx, participantIDs)
	if err != nil {
		return models.SessionView{}, fmt.Errorf("load participants of session %d: %w", session.ID, err)
	}
	byID := make(map[int]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	participants := make([]models.User, 0, len(participantIDs))
	for _, id := range participantIDs {
		if u, ok := byID[id]; ok {
			participants = append(participants, u)
		}
	}

	msgs, err := s.messages.ListSessionMessages(ctx, session.ID)
	if err != nil {
		return models.SessionView{}, fmt.Errorf("load messages of session %d: %w", session.ID, err)
	}

	return models.SessionView{ChatSession: session, Participants: participants, Messages: msgs}, nil
}

// pushSnapshot re-fetches the user's full session list and pushes it. A store
// failure aborts; a delivery failure does not.
func (s *Service) pushSnapshot(ctx context.Context, userID int, event string, activeOnly bool) error {
	views, err := s.Snapshot(ctx, userID, activeOnly)
	if err != nil {
		return err
	}
	s.push(userID, event, views)
	return nil
}

func (s *Service) push(userID int, event string, payload any) {
	if err := s.pusher.Push(userID, event, payload); err != nil {
		if errors.Is(err, ErrNotConnected) {
			observability.IncPush("missed")
			return
		}
		log.Printf("push %q to user %d failed: %v", event, userID, err)
		observability.IncPush("failed")
		return
	}
	observability.IncPush("delivered")
}

func otherParticipant(participantIDs []int, userID int) (int, error) {
	found := false
	other := 0
	hasOther := false
	for _, id := range participantIDs {
		if id == userID {
			found = true
			continue
		}
		if !hasOther {
			other = id
			hasOther = true
		}
	}
	if !found {
		return 0, ErrNotParticipant
	}
	if !hasOther {
		return 0, ErrNotParticipant
	}
	return other, nil
}
