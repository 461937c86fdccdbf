package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"livechat-service/internal/chat"
	"livechat-service/internal/mocks"
	"livechat-service/internal/models"
	"livechat-service/internal/repositories"
)

func setupSessionRouter(handler *SessionHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/sessions", handler.ListSessions)
	r.GET("/sessions/:session_id/messages", handler.GetSessionMessages)
	r.GET("/sessions/:session_id/messages/:message_id", handler.GetSessionMessage)
	return r
}

func newHandlerUnderTest(sessions *mocks.SessionRepositoryMock, messages *mocks.MessageRepositoryMock, users *mocks.UserRepositoryMock) *SessionHandler {
	service := chat.NewService(sessions, messages, users, new(mocks.PusherMock), chat.NewAssigner(sessions, users), nil)
	return NewSessionHandler(service, sessions, messages)
}

func TestListSessionsSuccess(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, messages, users))

	session := models.ChatSession{ID: 3, Name: "carol", Status: models.StatusActive}
	sessions.On("ListForUser", mock.Anything, 1, true).Return([]models.ChatSession{session}, nil).Once()
	sessions.On("ParticipantIDs", mock.Anything, 3).Return([]int{1, 2}, nil).Once()
	users.On("BulkUsers", mock.Anything, []int{1, 2}).
		Return([]models.User{{ID: 1, Name: "carol"}, {ID: 2, Name: "bob"}}, nil).Once()
	messages.On("ListSessionMessages", mock.Anything, 3).
		Return([]models.ChatMessage{{ID: 9, SessionID: 3, SenderID: 1, RecipientID: 2, Text: "hi"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sessions []models.SessionView `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "carol", resp.Sessions[0].Name)
	require.Len(t, resp.Sessions[0].Messages, 1)

	sessions.AssertExpectations(t)
	users.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestListSessionsIncludesClosedWithAll(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, messages, users))

	sessions.On("ListForUser", mock.Anything, 1, false).Return([]models.ChatSession{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions?all=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	sessions.AssertExpectations(t)
}

func TestListSessionsRepoError(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock)))

	sessions.On("ListForUser", mock.Anything, 1, true).Return(([]models.ChatSession)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	sessions.AssertExpectations(t)
}

func TestGetSessionMessagesSuccess(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, messages, new(mocks.UserRepositoryMock)))

	sessions.On("ParticipantIDs", mock.Anything, 5).Return([]int{1, 2}, nil).Once()
	messages.On("ListSessionMessages", mock.Anything, 5).
		Return([]models.ChatMessage{{ID: 1, SessionID: 5, SenderID: 2, Text: "hello"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	sessions.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestGetSessionMessagesInvalidID(t *testing.T) {
	router := setupSessionRouter(newHandlerUnderTest(new(mocks.SessionRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock)))

	req := httptest.NewRequest(http.MethodGet, "/sessions/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionMessagesNotParticipant(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock)))

	sessions.On("ParticipantIDs", mock.Anything, 5).Return([]int{2, 3}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	sessions.AssertExpectations(t)
}

func TestGetSessionMessageSuccess(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, messages, new(mocks.UserRepositoryMock)))

	sessions.On("ParticipantIDs", mock.Anything, 5).Return([]int{1, 2}, nil).Once()
	messages.On("GetMessage", mock.Anything, 9).
		Return(models.ChatMessage{ID: 9, SessionID: 5, SenderID: 2, RecipientID: 1, Text: "hello"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/5/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Message models.ChatMessage `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "hello", resp.Message.Text)

	sessions.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestGetSessionMessageNotFound(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, messages, new(mocks.UserRepositoryMock)))

	sessions.On("ParticipantIDs", mock.Anything, 5).Return([]int{1, 2}, nil).Once()
	messages.On("GetMessage", mock.Anything, 9).
		Return(models.ChatMessage{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/5/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	messages.AssertExpectations(t)
}

func TestGetSessionMessageWrongSession(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, messages, new(mocks.UserRepositoryMock)))

	sessions.On("ParticipantIDs", mock.Anything, 5).Return([]int{1, 2}, nil).Once()
	messages.On("GetMessage", mock.Anything, 9).
		Return(models.ChatMessage{ID: 9, SessionID: 6, SenderID: 2, Text: "elsewhere"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/5/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	messages.AssertExpectations(t)
}

func TestGetSessionMessagesNotFound(t *testing.T) {
	sessions := new(mocks.SessionRepositoryMock)
	router := setupSessionRouter(newHandlerUnderTest(sessions, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock)))

	sessions.On("ParticipantIDs", mock.Anything, 5).Return(([]int)(nil), repositories.ErrSessionNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	sessions.AssertExpectations(t)
}
