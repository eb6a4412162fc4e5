package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"gochat-backend/internal/ai"
	appsvc "gochat-backend/internal/app"
	"gochat-backend/internal/bootstrap"
	"gochat-backend/internal/cache"
	rabbitmqClient "gochat-backend/internal/platform/rabbitmq"
	"gochat-backend/internal/repository"
	"gochat-backend/internal/transport/http/handler"
	"gochat-backend/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	eventPublisher := rabbitmqClient.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.ChatEventQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		historyCache,
		eventPublisher,
		ai.NewOpenAICompatibleClient(),
		ai.ChatConfig{
			BaseURL: app.Config.LLM.BaseURL,
			APIKey:  app.Config.LLM.APIKey,
			Model:   app.Config.LLM.Model,
		},
		app.Config.LLM.SystemPrompt,
		app.Config.LLM.MaxContextMessage,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	wsHandler := handler.NewWSHandler(chatService, authService, app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	v1.GET("/users/me", middleware.AuthJWT(app.Config.Auth.JWTSecret, authService), authHandler.Me)

	chatGroup := v1.Group("/chat")
	// The websocket route authenticates itself from the token query
	// parameter, so it stays outside the bearer header middleware.
	chatGroup.GET("/ws/:id", wsHandler.Handle)

	authed := chatGroup.Group("")
	authed.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret, authService))
	authed.POST("/sessions", chatHandler.CreateSession)
	authed.GET("/sessions", chatHandler.ListSessions)
	authed.GET("/sessions/:id", chatHandler.GetSession)
	authed.PATCH("/sessions/:id", chatHandler.UpdateSession)
	authed.DELETE("/sessions/:id", chatHandler.DeleteSession)
	authed.POST("/sessions/:id/messages", chatHandler.SendMessage)

	return router
}
