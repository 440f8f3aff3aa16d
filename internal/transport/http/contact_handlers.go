package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/store"
)

// ContactHandlers provides HTTP handlers for the contact list.
type ContactHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewContactHandlers creates a new contact handlers instance.
func NewContactHandlers(st store.Store, logger *zerolog.Logger) *ContactHandlers {
	return &ContactHandlers{store: st, log: logger}
}

// AddContactRequest represents the add contact request body.
type AddContactRequest struct {
	Username string `json:"username" binding:"required"`
}

// ContactResponse represents a contact in API responses.
type ContactResponse struct {
	ContactID   int64  `json:"contact_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// Add records a contact for the authenticated user.
// POST /api/contacts
func (h *ContactHandlers) Add(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	contact, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve contact")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if contact.ID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot add yourself"})
		return
	}

	if err := h.store.AddContact(c.Request.Context(), uid, contact.ID); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "contact already exists"})
			return
		}
		h.log.Error().Err(err).Msg("failed to add contact")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, ContactResponse{
		ContactID:   contact.ID,
		Username:    contact.Username,
		DisplayName: contact.DisplayName,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

// List returns the authenticated user's contacts.
// GET /api/contacts
func (h *ContactHandlers) List(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	entries, err := h.store.ListContacts(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list contacts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ContactResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, ContactResponse{
			ContactID:   entry.ContactID,
			Username:    entry.Username,
			DisplayName: entry.DisplayName,
			CreatedAt:   entry.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}

// Remove deletes a contact by the contact user's id.
// DELETE /api/contacts/:id
func (h *ContactHandlers) Remove(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	contactID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid contact id"})
		return
	}

	if err := h.store.RemoveContact(c.Request.Context(), uid, contactID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "contact not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to remove contact")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
