package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/core"
	"github.com/vibechat/relay/internal/proto"
	"github.com/vibechat/relay/internal/store"
)

// DMHandlers provides HTTP handlers for the encrypted direct message relay.
// The server stores and forwards ciphertext; it never decrypts anything.
type DMHandlers struct {
	store        store.Store
	gateway      *core.Gateway
	registry     *core.Registry
	historyLimit int
	log          *zerolog.Logger
}

// NewDMHandlers creates a new DM handlers instance.
func NewDMHandlers(st store.Store, gateway *core.Gateway, registry *core.Registry, historyLimit int, logger *zerolog.Logger) *DMHandlers {
	return &DMHandlers{
		store:        st,
		gateway:      gateway,
		registry:     registry,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// SendDMRequest represents the encrypted message request body.
type SendDMRequest struct {
	RecipientUsername string `json:"recipient_username" binding:"required"`
	Ciphertext        string `json:"ciphertext" binding:"required"`
	Nonce             string `json:"nonce"`
	Salt              string `json:"salt"`
	MessageType       string `json:"message_type"`
}

// DMResponse represents a direct message in API responses.
type DMResponse struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Ciphertext  string `json:"ciphertext"`
	Nonce       string `json:"nonce,omitempty"`
	Salt        string `json:"salt,omitempty"`
	MessageType string `json:"message_type"`
	CreatedAt   string `json:"created_at"`
	DeliveredAt string `json:"delivered_at,omitempty"`
	ReadAt      string `json:"read_at,omitempty"`
}

func dmResponse(msg *store.DirectMessage) DMResponse {
	resp := DMResponse{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Ciphertext:  msg.Ciphertext,
		Nonce:       msg.Nonce,
		Salt:        msg.Salt,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt.Format(time.RFC3339),
	}
	if msg.DeliveredAt != nil {
		resp.DeliveredAt = msg.DeliveredAt.Format(time.RFC3339)
	}
	if msg.ReadAt != nil {
		resp.ReadAt = msg.ReadAt.Format(time.RFC3339)
	}
	return resp
}

// Send persists an encrypted message and forwards it to the recipient's
// inbox channel.
// POST /api/dm
func (h *DMHandlers) Send(c *gin.Context) {
	uid, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendDMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid dm request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	recipient, err := h.store.GetUserByUsername(c.Request.Context(), req.RecipientUsername)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "recipient not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve recipient")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if recipient.ID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot message yourself"})
		return
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = "text"
	}

	msg := &store.DirectMessage{
		SenderID:    uid,
		RecipientID: recipient.ID,
		Ciphertext:  req.Ciphertext,
		Nonce:       req.Nonce,
		Salt:        req.Salt,
		MessageType: messageType,
	}
	if err := h.store.SaveDirectMessage(c.Request.Context(), msg); err != nil {
		h.log.Error().Err(err).Msg("failed to save direct message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	inbox := core.InboxChannel(recipient.ID)
	h.gateway.Publish(inbox, proto.OutboundTypeNewMessage, proto.DirectMessagePayload{
		MessageID:   msg.ID,
		SenderID:    uid,
		Sender:      username,
		Ciphertext:  msg.Ciphertext,
		Nonce:       msg.Nonce,
		Salt:        msg.Salt,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt.Format(time.RFC3339),
	})

	// A live inbox subscriber has the message on its socket already.
	if len(h.registry.Connections(inbox)) > 0 {
		if err := h.store.MarkDelivered(c.Request.Context(), msg.ID); err != nil {
			h.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("failed to mark delivered")
		}
	}

	c.JSON(http.StatusCreated, dmResponse(msg))
}

// List returns the conversation with a peer, oldest first.
// GET /api/dm/:username?limit=
func (h *DMHandlers) List(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	peer, err := h.store.GetUserByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve peer")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	messages, err := h.store.ListDirectMessages(c.Request.Context(), uid, peer.ID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list direct messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]DMResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, dmResponse(msg))
	}

	c.JSON(http.StatusOK, response)
}

// MarkRead stamps a message read by its recipient.
// POST /api/dm/:id/read
func (h *DMHandlers) MarkRead(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	if err := h.store.MarkRead(c.Request.Context(), id, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to mark read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
