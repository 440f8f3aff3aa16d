package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Room is a slug-addressed chat room, created implicitly on first use.
type Room struct {
	ID            int64
	Slug          string
	CreatedAt     time.Time
	LastMessageAt *time.Time
}

// RoomMessage is a plaintext message posted to a room. The username is a
// free-form label; room messaging requires no account.
type RoomMessage struct {
	ID        int64
	RoomID    int64
	Username  string
	Content   string
	CreatedAt time.Time
}

// DirectMessage is an end-to-end-encrypted relay record. The server never
// interprets the ciphertext.
type DirectMessage struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Ciphertext  string
	Nonce       string
	Salt        string
	MessageType string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

// ContactEntry is a contact joined with the contact user's profile.
type ContactEntry struct {
	ContactID   int64
	Username    string
	DisplayName string
	CreatedAt   time.Time
}

// PublicKey is a user's published encryption key.
type PublicKey struct {
	ID           int64
	UserID       int64
	PublicKeyPEM string
	Fingerprint  string
	Algorithm    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new active user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash, displayName string) (*User, error)

	// GetUserByID retrieves a user by id.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// GetOrCreateRoom returns the room for a slug, creating it if absent.
	GetOrCreateRoom(ctx context.Context, slug string) (*Room, error)

	// GetRoomBySlug retrieves a room by slug.
	GetRoomBySlug(ctx context.Context, slug string) (*Room, error)
}

// RoomMessageStore handles room message persistence.
type RoomMessageStore interface {
	// SaveRoomMessage persists a message and bumps the room's
	// last_message_at. The message id is set on return.
	SaveRoomMessage(ctx context.Context, msg *RoomMessage) error

	// ListRoomMessages retrieves messages in chronological order.
	ListRoomMessages(ctx context.Context, roomID int64, limit, offset int) ([]*RoomMessage, error)

	// ClearRoomMessages deletes every message in a room and resets
	// last_message_at, returning the number deleted.
	ClearRoomMessages(ctx context.Context, roomID int64) (int64, error)
}

// DirectMessageStore handles encrypted relay persistence.
type DirectMessageStore interface {
	// SaveDirectMessage persists an encrypted message. The id is set on
	// return.
	SaveDirectMessage(ctx context.Context, msg *DirectMessage) error

	// ListDirectMessages retrieves the conversation between two users in
	// chronological order, newest limit messages.
	ListDirectMessages(ctx context.Context, userID, peerID int64, limit int) ([]*DirectMessage, error)

	// MarkDelivered stamps delivered_at if not already set.
	MarkDelivered(ctx context.Context, id int64) error

	// MarkRead stamps read_at; only the recipient may mark a message read.
	MarkRead(ctx context.Context, id, recipientID int64) error
}

// ContactStore handles contact persistence.
type ContactStore interface {
	// AddContact records a one-directional contact. Duplicate pairs fail
	// on the unique index.
	AddContact(ctx context.Context, userID, contactID int64) error

	// ListContacts lists a user's contacts with profile info.
	ListContacts(ctx context.Context, userID int64) ([]*ContactEntry, error)

	// RemoveContact deletes a contact pair. ErrNotFound if absent.
	RemoveContact(ctx context.Context, userID, contactID int64) error
}

// KeyStore handles public key persistence.
type KeyStore interface {
	// UpsertPublicKey inserts or replaces a user's key, reporting whether
	// a new row was created.
	UpsertPublicKey(ctx context.Context, key *PublicKey) (created bool, err error)

	// GetPublicKeyByUserID retrieves a key by owner id.
	GetPublicKeyByUserID(ctx context.Context, userID int64) (*PublicKey, error)

	// ListPublicKeys lists every stored key.
	ListPublicKeys(ctx context.Context) ([]*PublicKey, error)

	// DeletePublicKey removes a user's key. ErrNotFound if absent.
	DeletePublicKey(ctx context.Context, userID int64) error

	// DeleteAllPublicKeys wipes the key table, returning the number
	// removed.
	DeleteAllPublicKeys(ctx context.Context) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	RoomMessageStore
	DirectMessageStore
	ContactStore
	KeyStore

	// Close closes the underlying database connection.
	Close() error
}
