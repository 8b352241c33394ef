package handler

import (
	"dealchat/backend/internal/models"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// roomParam returns the normalized :room parameter, or "" after replying
// 400 when it is not a two-party room id.
func roomParam(c *gin.Context) string {
	room := models.NormalizeRoomID(c.Param("room"))
	if !strings.Contains(room, models.RoomSeparator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room id must join two user ids with '" + models.RoomSeparator + "'"})
		return ""
	}
	return room
}

func (h *Handler) GetHistory(c *gin.Context) {
	room := roomParam(c)
	if room == "" {
		return
	}
	msgs, err := h.Store.History(c.Request.Context(), room)
	if err != nil {
		log.Error().Str("module", "http").Str("room_id", room).Err(err).Msg("history query failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is unavailable"})
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"roomId": room, "messages": msgs})
}

func (h *Handler) GetConversations(c *gin.Context) {
	user := models.NormalizeUserID(c.Param("user"))
	convs, err := h.Store.ConversationsFor(c.Request.Context(), user)
	if err != nil {
		log.Error().Str("module", "http").Str("user_id", user).Err(err).Msg("conversation query failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Conversations are unavailable"})
		return
	}
	if convs == nil {
		convs = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"userId": user, "conversations": convs})
}

func (h *Handler) GetPresence(c *gin.Context) {
	p, err := h.Hub.Presence(c.Request.Context(), c.Param("user"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Relay is not running"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetCallSession(c *gin.Context) {
	room := roomParam(c)
	if room == "" {
		return
	}
	s, err := h.Hub.CallSession(c.Request.Context(), room)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Relay is not running"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// postMessageRequest is the body of POST /rooms/:room/messages.
type postMessageRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message" binding:"required"`
}

// PostMessage relays a message produced by another backend service, such
// as a listing status notice, into a room as a system message.
func (h *Handler) PostMessage(c *gin.Context) {
	room := roomParam(c)
	if room == "" {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A message is required"})
		return
	}
	sender := models.NormalizeUserID(req.Sender)
	if tokenUser := c.GetString(userContextKey); tokenUser != "" {
		if sender != "" && sender != tokenUser {
			c.JSON(http.StatusForbidden, gin.H{"error": "Sender does not match token"})
			return
		}
		sender = tokenUser
	}
	if sender == "" {
		sender = "system"
	}
	if !models.ValidUserID(sender) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sender"})
		return
	}

	msg, err := h.Hub.Submit(c.Request.Context(), models.ChatMessage{
		RoomID: room,
		Sender: sender,
		Body:   req.Message,
		Kind:   models.KindSystem,
	})
	switch {
	case errors.Is(err, models.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Relay is not running"})
	default:
		c.JSON(http.StatusCreated, msg)
	}
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hub":   h.Hub.StatsSnapshot(),
		"cache": h.Store.CacheStats(),
	})
}

// Healthz reports whether the durable store answers and the hub runs.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
		return
	}
	select {
	case <-h.Hub.Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopping"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

