package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"livechat-service/internal/chat"
	"livechat-service/internal/repositories"
)

// SessionHandler is the read-only REST surface over sessions and messages,
// used by the rest of the application for display.
type SessionHandler struct {
	service     *chat.Service
	sessionRepo repositories.SessionRepository
	messageRepo repositories.MessageRepository
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(service *chat.Service, sessionRepo repositories.SessionRepository, messageRepo repositories.MessageRepository) *SessionHandler {
	return &SessionHandler{service: service, sessionRepo: sessionRepo, messageRepo: messageRepo}
}

// ListSessions returns the identified user's session snapshots. Active
// sessions by default; ?all=1 includes archived and closed ones.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := c.GetInt("userID")
	activeOnly := c.Query("all") != "1"

	views, err := h.service.Snapshot(c.Request.Context(), userID, activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

// GetSessionMessages returns a session's ordered messages to a participant.
func (h *SessionHandler) GetSessionMessages(c *gin.Context) {
	sessionID, err := strconv.Atoi(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	userID := c.GetInt("userID")
	participantIDs, err := h.sessionRepo.ParticipantIDs(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}

	member := false
	for _, id := range participantIDs {
		if id == userID {
			member = true
			break
		}
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
		return
	}

	msgs, err := h.messageRepo.ListSessionMessages(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetSessionMessage returns a single message to a session participant.
func (h *SessionHandler) GetSessionMessage(c *gin.Context) {
	sessionID, err := strconv.Atoi(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID := c.GetInt("userID")
	participantIDs, err := h.sessionRepo.ParticipantIDs(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}

	member := false
	for _, id := range participantIDs {
		if id == userID {
			member = true
			break
		}
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if msg.SessionID != sessionID {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Healthz is the liveness probe.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
