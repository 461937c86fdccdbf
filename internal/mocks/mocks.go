package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"livechat-service/internal/models"
	"livechat-service/internal/repositories"
)

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) CreateSession(ctx context.Context, name string, participantIDs []int) (models.ChatSession, error) {
	args := m.Called(ctx, name, participantIDs)
	var session models.ChatSession
	if val := args.Get(0); val != nil {
		session = val.(models.ChatSession)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) GetSession(ctx context.Context, sessionID int) (models.ChatSession, error) {
	args := m.Called(ctx, sessionID)
	var session models.ChatSession
	if val := args.Get(0); val != nil {
		session = val.(models.ChatSession)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) ParticipantIDs(ctx context.Context, sessionID int) ([]int, error) {
	args := m.Called(ctx, sessionID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *SessionRepositoryMock) ListForUser(ctx context.Context, userID int, activeOnly bool) ([]models.ChatSession, error) {
	args := m.Called(ctx, userID, activeOnly)
	var sessions []models.ChatSession
	if val := args.Get(0); val != nil {
		sessions = val.([]models.ChatSession)
	}
	return sessions, args.Error(1)
}

func (m *SessionRepositoryMock) CountActiveForUser(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *SessionRepositoryMock) SetStatus(ctx context.Context, sessionID int, status models.SessionStatus) error {
	args := m.Called(ctx, sessionID, status)
	return args.Error(0)
}

func (m *SessionRepositoryMock) Touch(ctx context.Context, sessionID int) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, sessionID, senderID, recipientID int, text string) (models.ChatMessage, error) {
	args := m.Called(ctx, sessionID, senderID, recipientID, text)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListSessionMessages(ctx context.Context, sessionID int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, sessionID)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error) {
	args := m.Called(ctx, messageID)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, sessionID, readerID int) (int64, error) {
	args := m.Called(ctx, sessionID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListByRole(ctx context.Context, role string) ([]models.User, error) {
	args := m.Called(ctx, role)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) Push(userID int, event string, payload any) error {
	args := m.Called(userID, event, payload)
	return args.Error(0)
}

var _ repositories.SessionRepository = (*SessionRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
