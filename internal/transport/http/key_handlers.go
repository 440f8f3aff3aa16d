package http

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/store"
)

// KeyHandlers provides HTTP handlers for published encryption keys.
type KeyHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewKeyHandlers creates a new key handlers instance.
func NewKeyHandlers(st store.Store, logger *zerolog.Logger) *KeyHandlers {
	return &KeyHandlers{store: st, log: logger}
}

// UploadKeyRequest represents the key upload request body.
type UploadKeyRequest struct {
	PublicKeyPEM string `json:"public_key_pem" binding:"required"`
	Algorithm    string `json:"algorithm"`
}

// KeyResponse represents a published key in API responses.
type KeyResponse struct {
	UserID       int64  `json:"user_id"`
	PublicKeyPEM string `json:"public_key_pem"`
	Fingerprint  string `json:"fingerprint"`
	Algorithm    string `json:"algorithm"`
	UpdatedAt    string `json:"updated_at"`
}

// Fingerprint derives the SHA-256 fingerprint of a PEM-encoded key.
func Fingerprint(pem string) string {
	sum := sha256.Sum256([]byte(pem))
	return hex.EncodeToString(sum[:])
}

// Upload publishes or replaces the authenticated user's key.
// POST /api/keys
func (h *KeyHandlers) Upload(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req UploadKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = "RSA-4096"
	}

	key := &store.PublicKey{
		UserID:       uid,
		PublicKeyPEM: req.PublicKeyPEM,
		Fingerprint:  Fingerprint(req.PublicKeyPEM),
		Algorithm:    algorithm,
	}
	created, err := h.store.UpsertPublicKey(c.Request.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to upsert key")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, KeyResponse{
		UserID:       key.UserID,
		PublicKeyPEM: key.PublicKeyPEM,
		Fingerprint:  key.Fingerprint,
		Algorithm:    key.Algorithm,
		UpdatedAt:    key.UpdatedAt.Format(time.RFC3339),
	})
}

// Get returns a user's published key. The literal username "me" resolves
// to the authenticated caller.
// GET /api/keys/:username
func (h *KeyHandlers) Get(c *gin.Context) {
	username := c.Param("username")
	if username == "me" {
		_, name, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		username = name
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	key, err := h.store.GetPublicKeyByUserID(c.Request.Context(), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no key published"})
			return
		}
		h.log.Error().Err(err).Msg("failed to load key")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, KeyResponse{
		UserID:       key.UserID,
		PublicKeyPEM: key.PublicKeyPEM,
		Fingerprint:  key.Fingerprint,
		Algorithm:    key.Algorithm,
		UpdatedAt:    key.UpdatedAt.Format(time.RFC3339),
	})
}
