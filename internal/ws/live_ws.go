package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"livechat-service/internal/chat"
	"livechat-service/internal/observability"
	"livechat-service/internal/repositories"
)

// Inbound event names, matching the protocol the clients already speak.
const (
	eventInit           = "init"
	eventSupportInit    = "support:init"
	eventSendMessage    = "send message"
	eventContactSupport = "customer:contactSupport"
	eventMessageRead    = "message read"
	eventMarkDone       = "support:markAsDone"
)

type initPayload struct {
	UserID int `json:"user_id"`
}

type sendPayload struct {
	UserID    int    `json:"user_id"`
	SessionID int    `json:"session_id"`
	Text      string `json:"text"`
}

type sessionPayload struct {
	UserID    int `json:"user_id"`
	SessionID int `json:"session_id"`
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errBadPayload = errors.New("malformed event payload")

// decode unmarshals an event payload, tagging failures so they surface to
// the client as bad_request rather than internal.
func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// LiveChatHandler owns the live-chat websocket endpoint: it upgrades the
// connection, decodes inbound events, and routes them to the chat engine.
type LiveChatHandler struct {
	registry *Registry
	service  *chat.Service
}

// NewLiveChatHandler constructs a LiveChatHandler.
func NewLiveChatHandler(registry *Registry, service *chat.Service) *LiveChatHandler {
	return &LiveChatHandler{registry: registry, service: service}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts the per-connection event loop.
// Identity arrives later via init/support:init, so there is no auth gate here.
func (h *LiveChatHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("livechat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := newLockedConn(raw)

	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishConnEvent(ctx, "ws_connect", info, "")

	go h.readLoop(ctx, conn, info)
}

func (h *LiveChatHandler) readLoop(ctx context.Context, conn *lockedConn, info ConnInfo) {
	var closeReason string
	defer func() {
		if userID, ok := h.registry.Unregister(conn); ok {
			info.UserID = userID
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishConnEvent(ctx, "ws_disconnect", info, closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishConnEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}
		h.dispatch(ctx, conn, &info, data)
	}
}

// dispatch runs one inbound event to completion before the loop reads the
// next frame. Handler errors are reported back on the same connection as a
// distinct error frame instead of being dropped.
func (h *LiveChatHandler) dispatch(ctx context.Context, conn Conn, info *ConnInfo, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(conn, "bad_request", "malformed event frame")
		return
	}
	observability.IncWSEvent(frame.Event)

	var err error
	switch frame.Event {
	case eventInit:
		var p initPayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.handleInit(ctx, conn, info, p.UserID, true)
		}
	case eventSupportInit:
		var p initPayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.handleInit(ctx, conn, info, p.UserID, false)
		}
	case eventSendMessage:
		var p sendPayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.service.SendMessage(ctx, p.UserID, p.SessionID, p.Text)
		}
	case eventContactSupport:
		var p initPayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.service.RequestSupport(ctx, p.UserID)
		}
	case eventMessageRead:
		var p sessionPayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.service.MarkRead(ctx, p.UserID, p.SessionID)
		}
	case eventMarkDone:
		var p sessionPayload
		if err = decode(frame.Data, &p); err == nil {
			err = h.service.MarkDone(ctx, p.UserID, p.SessionID)
		}
	default:
		h.sendError(conn, "bad_request", "unknown event: "+frame.Event)
		return
	}

	if err != nil {
		log.Printf("live-chat event %q failed: %v", frame.Event, err)
		h.sendError(conn, errorCode(err), err.Error())
	}
}

// handleInit registers the connection under the claimed user id and replies
// with the user's session snapshot: active sessions for customers, every
// status for support agents.
func (h *LiveChatHandler) handleInit(ctx context.Context, conn Conn, info *ConnInfo, userID int, activeOnly bool) error {
	info.UserID = userID
	h.registry.Register(userID, conn, *info)

	views, err := h.service.Snapshot(ctx, userID, activeOnly)
	if err != nil {
		return err
	}
	return h.registry.Push(userID, chat.EventReceiveMessage, views)
}

func (h *LiveChatHandler) sendError(conn Conn, code, message string) {
	frame, err := json.Marshal(Envelope{Event: "error", Data: errorPayload{Code: code, Message: message}})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("websocket error frame write failed: %v", err)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadPayload):
		return "bad_request"
	case errors.Is(err, repositories.ErrSessionNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrSessionClosed),
		errors.Is(err, chat.ErrNotParticipant):
		return "invalid_state"
	case errors.Is(err, chat.ErrNoAgentAvailable):
		return "no_agent_available"
	default:
		return "internal"
	}
}

func (h *LiveChatHandler) publishConnEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.livechat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
