package handler

import (
	"context"
	"dealchat/backend/internal/chathub"
	"dealchat/backend/internal/localization"
	"dealchat/backend/internal/models"
	"dealchat/backend/internal/storage"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const userContextKey = "user_id"

// Store is what the HTTP queries need from the chat store.
type Store interface {
	History(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	ConversationsFor(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	Ping(ctx context.Context) error
	CacheStats() storage.CacheStats
}

// Handler holds what the HTTP and websocket endpoints talk to.
type Handler struct {
	Hub       *chathub.ManagerService
	Store     Store
	Tokens    *TokenIssuer
	Localizer *localization.Localizer
	// Client is the template for every websocket client; UserID and Lang
	// are filled per connection.
	Client chathub.ClientOptions
}

func NewHandler(hub *chathub.ManagerService, store Store, tokens *TokenIssuer, loc *localization.Localizer, client chathub.ClientOptions) *Handler {
	return &Handler{Hub: hub, Store: store, Tokens: tokens, Localizer: loc, Client: client}
}

// NewRouter builds the gin engine with every relay route.
func NewRouter(mode string, h *Handler) *gin.Engine {
	switch mode {
	case gin.DebugMode, gin.TestMode, gin.ReleaseMode:
		gin.SetMode(mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/token", h.GetToken)
	r.GET("/healthz", h.Healthz)
	r.GET("/stats", h.GetStats)

	r.GET("/rooms/:room/history", h.GetHistory)
	r.GET("/rooms/:room/call", h.GetCallSession)
	r.POST("/rooms/:room/messages", h.RequireToken(), h.PostMessage)

	r.GET("/users/:user/conversations", h.GetConversations)
	r.GET("/users/:user/presence", h.GetPresence)
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("module", "http").
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
