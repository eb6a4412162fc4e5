package app

import (
	"context"
	"errors"
	"strings"

	"gochat-backend/internal/ai"
	"gochat-backend/internal/model"
	"gochat-backend/internal/pkg/logger"
)

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrMessageEmpty    = errors.New("message content is required")
	ErrMessageTooLong  = errors.New("message exceeds maximum length of 10,000 characters")
	ErrAIRateLimited   = errors.New("too many requests, please wait a moment and try again")
	ErrAIUnavailable   = errors.New("ai service temporarily unavailable, please try again")
)

const (
	defaultSessionTitle = "New Conversation"
	maxMessageLength    = 10000
)

// SessionStore is the slice of the session repository the chat service needs.
type SessionStore interface {
	Create(session *model.ChatSession) error
	ListByUserID(userID uint, limit, offset int) ([]model.ChatSession, int64, error)
	GetByIDAndUserID(sessionID, userID uint) (*model.ChatSession, error)
	UpdateTitle(session *model.ChatSession, title string) error
	DeleteByIDAndUserID(sessionID, userID uint) error
}

type MessageStore interface {
	Create(message *model.Message) error
	CreateWithSessionTouch(message *model.Message) error
	ListBySessionID(sessionID uint) ([]model.Message, error)
	ListRecentBySessionID(sessionID uint, limit int) ([]model.Message, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// EventPublisher emits the best-effort audit trail. Publish failures are
// logged and never surfaced to callers.
type EventPublisher interface {
	Publish(ctx context.Context, event model.ChatEvent) error
}

// ModelProvider is the injected collaborator for text generation. The adapter
// returns *ai.ProviderError so rate limiting is decided at that boundary.
type ModelProvider interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

type ChatService struct {
	sessionStore SessionStore
	messageStore MessageStore
	historyCache HistoryCache
	events       EventPublisher
	provider     ModelProvider
	llm          ai.ChatConfig
	systemPrompt string
	maxContext   int
}

type SessionPage struct {
	Sessions []model.ChatSession
	Total    int64
	Limit    int
	Offset   int
}

func NewChatService(
	sessionStore SessionStore,
	messageStore MessageStore,
	historyCache HistoryCache,
	events EventPublisher,
	provider ModelProvider,
	llm ai.ChatConfig,
	systemPrompt string,
	maxContext int,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	return &ChatService{
		sessionStore: sessionStore,
		messageStore: messageStore,
		historyCache: historyCache,
		events:       events,
		provider:     provider,
		llm:          llm,
		systemPrompt: systemPrompt,
		maxContext:   maxContext,
	}
}

func (s *ChatService) CreateSession(ctx context.Context, userID uint, title string) (*model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultSessionTitle
	}

	session := &model.ChatSession{
		UserID: userID,
		Title:  title,
	}
	if err := s.sessionStore.Create(session); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, userID, session.ID, model.EventSessionCreated)
	return session, nil
}

func (s *ChatService) ListSessions(userID uint, limit, offset int) (*SessionPage, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	sessions, total, err := s.sessionStore.ListByUserID(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &SessionPage{Sessions: sessions, Total: total, Limit: limit, Offset: offset}, nil
}

// GetOwnedSession is the single ownership capability: a missing session and a
// session owned by another user are both ErrSessionNotFound.
func (s *ChatService) GetOwnedSession(userID, sessionID uint) (*model.ChatSession, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionStore.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *ChatService) GetSessionWithMessages(ctx context.Context, userID, sessionID uint) (*model.ChatSession, []model.Message, error) {
	session, err := s.GetOwnedSession(userID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return session, cached, nil
			}
		}
	}

	messages, err := s.messageStore.ListBySessionID(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return session, messages, nil
}

func (s *ChatService) UpdateSessionTitle(userID, sessionID uint, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.GetOwnedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionStore.UpdateTitle(session, title); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	session, err := s.GetOwnedSession(userID, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessionStore.DeleteByIDAndUserID(session.ID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	s.publishEvent(ctx, userID, sessionID, model.EventSessionDeleted)
	return nil
}

// SendMessage runs one request/response exchange on an owned session.
func (s *ChatService) SendMessage(ctx context.Context, userID, sessionID uint, content string) (*model.Message, *model.Message, error) {
	session, err := s.GetOwnedSession(userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return s.exchange(ctx, session, content, nil, func(ctx context.Context, prompt []ai.ChatMessage) (string, error) {
		return s.provider.Complete(ctx, s.llm, prompt)
	})
}

// StreamExchange is the streaming variant used by the WebSocket gateway. The
// caller passes a session it already obtained through GetOwnedSession;
// onUserMessage fires once the user message is durable, before any chunk.
func (s *ChatService) StreamExchange(
	ctx context.Context,
	session *model.ChatSession,
	content string,
	onUserMessage func(*model.Message) error,
	onChunk func(string) error,
) (*model.Message, *model.Message, error) {
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	return s.exchange(ctx, session, content, onUserMessage, func(ctx context.Context, prompt []ai.ChatMessage) (string, error) {
		return s.provider.StreamComplete(ctx, s.llm, prompt, onChunk)
	})
}

// exchange persists the user message first, so a provider failure never loses
// user input, then generates and commits the assistant reply together with
// the session timestamp bump.
func (s *ChatService) exchange(
	ctx context.Context,
	session *model.ChatSession,
	content string,
	onUserMessage func(*model.Message) error,
	generate func(ctx context.Context, prompt []ai.ChatMessage) (string, error),
) (*model.Message, *model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrMessageEmpty
	}
	if len([]rune(content)) > maxMessageLength {
		return nil, nil, ErrMessageTooLong
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, session.ID)
		_ = s.historyCache.DeleteHistory(ctx, session.ID)
	}

	userMessage := &model.Message{
		SessionID: session.ID,
		Role:      model.RoleUser,
		Content:   content,
	}
	if err := s.messageStore.Create(userMessage); err != nil {
		return nil, nil, err
	}
	if onUserMessage != nil {
		if err := onUserMessage(userMessage); err != nil {
			return userMessage, nil, err
		}
	}

	prompt, err := s.buildPrompt(session.ID, userMessage)
	if err != nil {
		return userMessage, nil, err
	}

	reply, err := generate(ctx, prompt)
	if err != nil {
		return userMessage, nil, s.classifyProviderError(session.ID, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = "The model returned an empty response."
	}

	assistantMessage := &model.Message{
		SessionID: session.ID,
		Role:      model.RoleAssistant,
		Content:   reply,
	}
	if err := s.messageStore.CreateWithSessionTouch(assistantMessage); err != nil {
		return userMessage, nil, err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, session.ID)
	}
	s.publishEvent(ctx, session.UserID, session.ID, model.EventMessageExchanged)

	return userMessage, assistantMessage, nil
}

// buildPrompt assembles system instruction + recent history + the new
// message. The window is the last maxContext messages, excluding the
// just-persisted user message, returned in chronological order.
func (s *ChatService) buildPrompt(sessionID uint, current *model.Message) ([]ai.ChatMessage, error) {
	// One extra row covers the current message, which is already persisted
	// and filtered back out below.
	recent, err := s.messageStore.ListRecentBySessionID(sessionID, s.maxContext+1)
	if err != nil {
		return nil, err
	}

	prompt := make([]ai.ChatMessage, 0, len(recent)+2)
	prompt = append(prompt, ai.ChatMessage{Role: "system", Content: s.systemPrompt})
	for _, item := range recent {
		if item.ID == current.ID {
			continue
		}
		prompt = append(prompt, ai.ChatMessage{Role: item.Role, Content: item.Content})
	}
	prompt = append(prompt, ai.ChatMessage{Role: model.RoleUser, Content: current.Content})
	return prompt, nil
}

func (s *ChatService) classifyProviderError(sessionID uint, err error) error {
	logger.Errorw("model provider call failed", "session_id", sessionID, "error", err)

	var providerErr *ai.ProviderError
	if errors.As(err, &providerErr) && providerErr.RateLimited {
		return ErrAIRateLimited
	}
	return ErrAIUnavailable
}

func (s *ChatService) publishEvent(ctx context.Context, userID, sessionID uint, eventType string) {
	if s.events == nil {
		return
	}
	event := model.ChatEvent{
		UserID:    userID,
		SessionID: sessionID,
		Type:      eventType,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warnf("publish chat event failed: type=%s session=%d err=%v", eventType, sessionID, err)
	}
}
