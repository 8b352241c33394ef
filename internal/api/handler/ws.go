package handler

import (
	"dealchat/backend/internal/chathub"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the marketplace front end on another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the HTTP connection and hands it to the hub. A
// token is optional; when present it pins the connection to its user.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	var userID string
	if raw := bearerToken(c); raw != "" {
		if h.Tokens == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Tokens are not accepted by this relay"})
			return
		}
		id, err := h.Tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		userID = id
	}
	lang := h.Localizer.PickLanguage(c.Query("lang") + "," + c.GetHeader("Accept-Language"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Warn().Str("module", "http").Err(err).Msg("websocket upgrade failed")
		return
	}

	opts := h.Client
	opts.UserID = userID
	opts.Lang = lang
	client := chathub.NewWebSocketClient(h.Hub, conn, opts)

	if !h.Hub.Register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	log.Debug().Str("module", "http").Str("conn_id", client.GetConnID()).Str("user_id", userID).Str("lang", lang).Msg("websocket connected")
	client.Run()
}
