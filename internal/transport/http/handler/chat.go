package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gochat-backend/internal/app"
	"gochat-backend/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"max=255"`
}

type UpdateSessionRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "could not validate credentials")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidationError, "invalid request payload")
		return
	}

	session, err := h.chatService.CreateSession(c.Request.Context(), user.ID, req.Title)
	if err != nil {
		respondChatError(c, err, "failed to create chat session")
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "could not validate credentials")
		return
	}

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	page, err := h.chatService.ListSessions(user.ID, limit, offset)
	if err != nil {
		respondChatError(c, err, "failed to retrieve chat sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": page.Sessions,
		"total":    page.Total,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "could not validate credentials")
		return
	}

	sessionID, ok := pathSessionID(c)
	if !ok {
		return
	}

	session, messages, err := h.chatService.GetSessionWithMessages(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		respondChatError(c, err, "failed to retrieve chat session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         session.ID,
		"user_id":    session.UserID,
		"title":      session.Title,
		"created_at": session.CreatedAt,
		"updated_at": session.UpdatedAt,
		"messages":   messages,
	})
}

func (h *ChatHandler) UpdateSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "could not validate credentials")
		return
	}

	sessionID, ok := pathSessionID(c)
	if !ok {
		return
	}

	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidationError, "invalid request payload")
		return
	}

	session, err := h.chatService.UpdateSessionTitle(user.ID, sessionID, req.Title)
	if err != nil {
		respondChatError(c, err, "failed to update chat session")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "could not validate credentials")
		return
	}

	sessionID, ok := pathSessionID(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteSession(c.Request.Context(), user.ID, sessionID); err != nil {
		respondChatError(c, err, "failed to delete chat session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "could not validate credentials")
		return
	}

	sessionID, ok := pathSessionID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidationError, "invalid request payload")
		return
	}

	userMessage, assistantMessage, err := h.chatService.SendMessage(c.Request.Context(), user.ID, sessionID, req.Content)
	if err != nil {
		respondChatError(c, err, "failed to process message")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_message":      userMessage,
		"assistant_message": assistantMessage,
	})
}

func respondChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty), errors.Is(err, app.ErrMessageTooLong):
		response.Error(c, http.StatusBadRequest, response.CodeValidationError, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "chat session not found")
	case errors.Is(err, app.ErrAIRateLimited):
		response.Error(c, http.StatusTooManyRequests, response.CodeAIRateLimit, err.Error())
	case errors.Is(err, app.ErrAIUnavailable):
		response.Error(c, http.StatusInternalServerError, response.CodeAIAPIError, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalError, fallback)
	}
}

func pathSessionID(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeValidationError, "invalid session id")
		return 0, false
	}
	return uint(id64), true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
