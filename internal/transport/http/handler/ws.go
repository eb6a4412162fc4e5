package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gochat-backend/internal/app"
	"gochat-backend/internal/model"
	"gochat-backend/internal/pkg/jwtutil"
	"gochat-backend/internal/pkg/logger"
	"gochat-backend/internal/transport/http/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// connState enumerates the gateway lifecycle. Frames are only processed in
// stateActive; every other state has exactly one legal successor, so a
// message arriving before authentication has nowhere to go.
type connState int

const (
	stateConnecting connState = iota
	stateAuthenticating
	stateAuthorizing
	stateActive
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateAuthorizing:
		return "authorizing"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// transition validates a state change; closing is legal from anywhere.
func (s connState) transition(next connState) (connState, error) {
	if next == stateClosed || next == s+1 {
		return next, nil
	}
	return s, fmt.Errorf("illegal gateway transition %s -> %s", s, next)
}

type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type WSHandler struct {
	chatService *app.ChatService
	authService *app.AuthService
	jwtSecret   string
}

func NewWSHandler(chatService *app.ChatService, authService *app.AuthService, jwtSecret string) *WSHandler {
	return &WSHandler{
		chatService: chatService,
		authService: authService,
		jwtSecret:   jwtSecret,
	}
}

// Handle runs one streaming chat connection: authenticate once, verify
// session ownership once, then loop over inbound message frames.
func (h *WSHandler) Handle(c *gin.Context) {
	sessionID, ok := pathSessionID(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	state := stateConnecting

	defer func() {
		state, _ = state.transition(stateClosed)
		_ = conn.Close()
	}()

	state, _ = state.transition(stateAuthenticating)
	user, ok := h.authenticate(c, conn)
	if !ok {
		return
	}

	state, _ = state.transition(stateAuthorizing)
	session, err := h.chatService.GetOwnedSession(user.ID, sessionID)
	if err != nil {
		h.sendError(conn, "Session not found or access denied", response.CodeNotFound)
		h.closeWithPolicyViolation(conn)
		return
	}

	state, err = state.transition(stateActive)
	if err != nil {
		logger.Errorf("websocket state error: %v", err)
		return
	}
	logger.Infow("websocket connection active", "user_id", user.ID, "session_id", session.ID)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("websocket read failed: %v", err)
			}
			return
		}

		// Frame violations answer with an error and keep the connection open.
		if frame.Type != "message" {
			h.sendError(conn, "Invalid message type", "INVALID_MESSAGE_TYPE")
			continue
		}
		content := strings.TrimSpace(frame.Content)
		if content == "" {
			h.sendError(conn, "Message content is required", "EMPTY_MESSAGE")
			continue
		}
		if len([]rune(content)) > 10000 {
			h.sendError(conn, "Message exceeds maximum length of 10,000 characters", "MESSAGE_TOO_LONG")
			continue
		}

		_, assistantMessage, err := h.chatService.StreamExchange(
			c.Request.Context(),
			session,
			content,
			func(userMessage *model.Message) error {
				return conn.WriteJSON(gin.H{
					"type":    "user_message",
					"message": messageView(userMessage),
				})
			},
			func(chunk string) error {
				return conn.WriteJSON(gin.H{
					"type":    "chunk",
					"content": chunk,
				})
			},
		)
		if err != nil {
			logger.Errorw("websocket exchange failed", "session_id", session.ID, "error", err)
			h.sendError(conn, "Failed to process message. Please try again.", "PROCESSING_ERROR")
			continue
		}

		if err := conn.WriteJSON(gin.H{
			"type":       "done",
			"message_id": assistantMessage.ID,
			"message":    messageView(assistantMessage),
		}); err != nil {
			logger.Warnf("websocket write done frame failed: %v", err)
			return
		}
	}
}

func (h *WSHandler) authenticate(c *gin.Context, conn *websocket.Conn) (*model.User, bool) {
	token := c.Query("token")
	if token == "" {
		h.sendError(conn, "Authentication token is required", response.CodeUnauthorized)
		h.closeWithPolicyViolation(conn)
		return nil, false
	}

	claims, err := jwtutil.ParseToken(h.jwtSecret, token)
	if err != nil {
		h.sendError(conn, "Authentication failed", response.CodeUnauthorized)
		h.closeWithPolicyViolation(conn)
		return nil, false
	}

	user, err := h.authService.GetUserByID(claims.UserID)
	if err != nil || user == nil || !user.IsActive {
		h.sendError(conn, "Authentication failed", response.CodeUnauthorized)
		h.closeWithPolicyViolation(conn)
		return nil, false
	}
	return user, true
}

// sendError delivers a structured error frame; delivery itself is best
// effort.
func (h *WSHandler) sendError(conn *websocket.Conn, message, code string) {
	if err := conn.WriteJSON(gin.H{
		"type":    "error",
		"message": message,
		"code":    code,
	}); err != nil {
		logger.Warnf("websocket write error frame failed: %v", err)
	}
}

func (h *WSHandler) closeWithPolicyViolation(conn *websocket.Conn) {
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""),
	)
}

func messageView(message *model.Message) gin.H {
	return gin.H{
		"id":         message.ID,
		"session_id": message.SessionID,
		"role":       message.Role,
		"content":    message.Content,
		"created_at": message.CreatedAt,
	}
}
