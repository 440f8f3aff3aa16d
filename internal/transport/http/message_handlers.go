package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/core"
	"github.com/vibechat/relay/internal/proto"
	"github.com/vibechat/relay/internal/store"
)

// MessageHandlers provides HTTP handlers for room message endpoints.
// Every successful write fans out to the room's websocket subscribers.
type MessageHandlers struct {
	store        store.Store
	gateway      *core.Gateway
	historyLimit int
	log          *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, gateway *core.Gateway, historyLimit int, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store:        st,
		gateway:      gateway,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// SendMessageRequest represents the room message request body.
type SendMessageRequest struct {
	Username string `json:"username" binding:"required,min=1,max=80"`
	Content  string `json:"content" binding:"required,min=1,max=4000"`
}

// MessageResponse represents a room message in API responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	RoomSlug  string `json:"room_slug"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Send persists a room message and notifies subscribers.
// POST /api/rooms/:slug/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	slug := c.Param("slug")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.store.GetOrCreateRoom(c.Request.Context(), slug)
	if err != nil {
		h.log.Error().Err(err).Str("slug", slug).Msg("failed to resolve room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	msg := &store.RoomMessage{
		RoomID:   room.ID,
		Username: req.Username,
		Content:  req.Content,
	}
	if err := h.store.SaveRoomMessage(c.Request.Context(), msg); err != nil {
		h.log.Error().Err(err).Str("slug", slug).Msg("failed to save room message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// Fan out only after the write is durable; the sender's own socket
	// receives the broadcast like everyone else's.
	h.gateway.Publish(core.RoomChannel(slug), proto.OutboundTypeNewMessage, proto.RoomMessagePayload{
		MessageID: msg.ID,
		RoomSlug:  slug,
		Username:  msg.Username,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	})

	c.JSON(http.StatusCreated, MessageResponse{
		ID:        msg.ID,
		RoomSlug:  slug,
		Username:  msg.Username,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	})
}

// List returns a room's message history in chronological order.
// GET /api/rooms/:slug/messages?limit=&offset=
func (h *MessageHandlers) List(c *gin.Context) {
	slug := c.Param("slug")

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	room, err := h.store.GetRoomBySlug(c.Request.Context(), slug)
	if err != nil {
		// An unknown room simply has no history yet.
		c.JSON(http.StatusOK, []MessageResponse{})
		return
	}

	messages, err := h.store.ListRoomMessages(c.Request.Context(), room.ID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Str("slug", slug).Msg("failed to list room messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, MessageResponse{
			ID:        msg.ID,
			RoomSlug:  slug,
			Username:  msg.Username,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}

// Clear wipes a room's history and notifies subscribers.
// DELETE /api/rooms/:slug/messages
func (h *MessageHandlers) Clear(c *gin.Context) {
	slug := c.Param("slug")

	room, err := h.store.GetRoomBySlug(c.Request.Context(), slug)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	deleted, err := h.store.ClearRoomMessages(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Error().Err(err).Str("slug", slug).Msg("failed to clear room messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.gateway.Publish(core.RoomChannel(slug), proto.OutboundTypeMessagesCleared, proto.MessagesClearedPayload{
		RoomSlug: slug,
	})

	h.log.Info().Str("slug", slug).Int64("deleted", deleted).Msg("room history cleared")
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
