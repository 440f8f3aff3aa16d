package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vibechat/relay/internal/store"
)

// schema is applied at open so a fresh database is usable immediately.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	slug            TEXT NOT NULL UNIQUE,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_message_at DATETIME
);

CREATE TABLE IF NOT EXISTS room_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	username   TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_room_messages_room_created
	ON room_messages(room_id, created_at);

CREATE TABLE IF NOT EXISTS direct_messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id    INTEGER NOT NULL REFERENCES users(id),
	recipient_id INTEGER NOT NULL REFERENCES users(id),
	ciphertext   TEXT NOT NULL,
	nonce        TEXT NOT NULL DEFAULT '',
	salt         TEXT NOT NULL DEFAULT '',
	message_type TEXT NOT NULL DEFAULT 'text',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	delivered_at DATETIME,
	read_at      DATETIME
);
CREATE INDEX IF NOT EXISTS idx_direct_messages_pair
	ON direct_messages(sender_id, recipient_id, created_at);

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	contact_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, contact_id)
);

CREATE TABLE IF NOT EXISTS public_keys (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	public_key_pem TEXT NOT NULL,
	fingerprint    TEXT NOT NULL,
	algorithm      TEXT NOT NULL DEFAULT 'RSA-4096',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database and runs a setup function.
// Useful for tests that seed data before the store is used.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks database liveness.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ==== UserStore implementation ====

// CreateUser creates a new active user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, displayName string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, display_name)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, displayName)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, display_name, is_active, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, display_name, is_active, created_at, updated_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.DisplayName,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== RoomStore implementation ====

// GetOrCreateRoom returns the room for a slug, creating it on first use.
func (s *SQLiteStore) GetOrCreateRoom(ctx context.Context, slug string) (*store.Room, error) {
	room, err := s.GetRoomBySlug(ctx, slug)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	query := `INSERT INTO rooms (slug) VALUES (?) ON CONFLICT(slug) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, slug); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return s.GetRoomBySlug(ctx, slug)
}

// GetRoomBySlug retrieves a room by slug.
func (s *SQLiteStore) GetRoomBySlug(ctx context.Context, slug string) (*store.Room, error) {
	query := `
		SELECT id, slug, created_at, last_message_at
		FROM rooms
		WHERE slug = ?
	`
	var room store.Room
	var lastMessageAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, slug).Scan(
		&room.ID,
		&room.Slug,
		&room.CreatedAt,
		&lastMessageAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	if lastMessageAt.Valid {
		room.LastMessageAt = &lastMessageAt.Time
	}

	return &room, nil
}

// ==== RoomMessageStore implementation ====

// SaveRoomMessage persists a message and bumps the room's last_message_at.
func (s *SQLiteStore) SaveRoomMessage(ctx context.Context, msg *store.RoomMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO room_messages (room_id, username, content)
		VALUES (?, ?, ?)
	`, msg.RoomID, msg.Username, msg.Content)
	if err != nil {
		return fmt.Errorf("insert room message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE rooms SET last_message_at = CURRENT_TIMESTAMP WHERE id = ?
	`, msg.RoomID); err != nil {
		return fmt.Errorf("touch room: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT created_at FROM room_messages WHERE id = ?
	`, id).Scan(&msg.CreatedAt); err != nil {
		return fmt.Errorf("read created_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	msg.ID = id
	return nil
}

// ListRoomMessages retrieves messages in chronological order.
func (s *SQLiteStore) ListRoomMessages(ctx context.Context, roomID int64, limit, offset int) ([]*store.RoomMessage, error) {
	query := `
		SELECT id, room_id, username, content, created_at
		FROM room_messages
		WHERE room_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query room messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.RoomMessage
	for rows.Next() {
		var msg store.RoomMessage
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// ClearRoomMessages deletes every message in a room.
func (s *SQLiteStore) ClearRoomMessages(ctx context.Context, roomID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM room_messages WHERE room_id = ?`, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete room messages: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE rooms SET last_message_at = NULL WHERE id = ?
	`, roomID); err != nil {
		return 0, fmt.Errorf("reset room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return deleted, nil
}

// ==== DirectMessageStore implementation ====

// SaveDirectMessage persists an encrypted message.
func (s *SQLiteStore) SaveDirectMessage(ctx context.Context, msg *store.DirectMessage) error {
	query := `
		INSERT INTO direct_messages (sender_id, recipient_id, ciphertext, nonce, salt, message_type)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.SenderID, msg.RecipientID, msg.Ciphertext, msg.Nonce, msg.Salt, msg.MessageType)
	if err != nil {
		return fmt.Errorf("insert direct message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM direct_messages WHERE id = ?
	`, id).Scan(&msg.CreatedAt); err != nil {
		return fmt.Errorf("read created_at: %w", err)
	}

	msg.ID = id
	return nil
}

// ListDirectMessages retrieves the conversation between two users,
// oldest first, capped at the newest limit messages.
func (s *SQLiteStore) ListDirectMessages(ctx context.Context, userID, peerID int64, limit int) ([]*store.DirectMessage, error) {
	query := `
		SELECT id, sender_id, recipient_id, ciphertext, nonce, salt, message_type,
		       created_at, delivered_at, read_at
		FROM (
			SELECT * FROM direct_messages
			WHERE (sender_id = ? AND recipient_id = ?)
			   OR (sender_id = ? AND recipient_id = ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, peerID, peerID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query direct messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.DirectMessage
	for rows.Next() {
		var msg store.DirectMessage
		var deliveredAt, readAt sql.NullTime
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Ciphertext,
			&msg.Nonce,
			&msg.Salt,
			&msg.MessageType,
			&msg.CreatedAt,
			&deliveredAt,
			&readAt,
		); err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		if deliveredAt.Valid {
			msg.DeliveredAt = &deliveredAt.Time
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// MarkDelivered stamps delivered_at if not already set.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id int64) error {
	query := `
		UPDATE direct_messages
		SET delivered_at = CURRENT_TIMESTAMP
		WHERE id = ? AND delivered_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkRead stamps read_at. Only the recipient may mark a message read.
func (s *SQLiteStore) MarkRead(ctx context.Context, id, recipientID int64) error {
	query := `
		UPDATE direct_messages
		SET read_at = CURRENT_TIMESTAMP,
		    delivered_at = COALESCE(delivered_at, CURRENT_TIMESTAMP)
		WHERE id = ? AND recipient_id = ? AND read_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== ContactStore implementation ====

// AddContact records a one-directional contact.
func (s *SQLiteStore) AddContact(ctx context.Context, userID, contactID int64) error {
	query := `INSERT INTO contacts (user_id, contact_id) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, userID, contactID); err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

// ListContacts lists a user's contacts with profile info.
func (s *SQLiteStore) ListContacts(ctx context.Context, userID int64) ([]*store.ContactEntry, error) {
	query := `
		SELECT c.contact_id, u.username, u.display_name, c.created_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = ?
		ORDER BY u.username ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var entries []*store.ContactEntry
	for rows.Next() {
		var entry store.ContactEntry
		if err := rows.Scan(&entry.ContactID, &entry.Username, &entry.DisplayName, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// RemoveContact deletes a contact pair.
func (s *SQLiteStore) RemoveContact(ctx context.Context, userID, contactID int64) error {
	query := `DELETE FROM contacts WHERE user_id = ? AND contact_id = ?`
	result, err := s.db.ExecContext(ctx, query, userID, contactID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== KeyStore implementation ====

// UpsertPublicKey inserts or replaces a user's key.
func (s *SQLiteStore) UpsertPublicKey(ctx context.Context, key *store.PublicKey) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM public_keys WHERE user_id = ?)
	`, key.UserID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check key: %w", err)
	}

	query := `
		INSERT INTO public_keys (user_id, public_key_pem, fingerprint, algorithm)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			public_key_pem = excluded.public_key_pem,
			fingerprint    = excluded.fingerprint,
			algorithm      = excluded.algorithm,
			updated_at     = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		key.UserID, key.PublicKeyPEM, key.Fingerprint, key.Algorithm); err != nil {
		return false, fmt.Errorf("upsert key: %w", err)
	}

	stored, err := s.GetPublicKeyByUserID(ctx, key.UserID)
	if err != nil {
		return false, err
	}
	*key = *stored

	return !exists, nil
}

// GetPublicKeyByUserID retrieves a key by owner ID.
func (s *SQLiteStore) GetPublicKeyByUserID(ctx context.Context, userID int64) (*store.PublicKey, error) {
	query := `
		SELECT id, user_id, public_key_pem, fingerprint, algorithm, created_at, updated_at
		FROM public_keys
		WHERE user_id = ?
	`
	var key store.PublicKey
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&key.ID,
		&key.UserID,
		&key.PublicKeyPEM,
		&key.Fingerprint,
		&key.Algorithm,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query key: %w", err)
	}

	return &key, nil
}

// ListPublicKeys lists every stored key.
func (s *SQLiteStore) ListPublicKeys(ctx context.Context) ([]*store.PublicKey, error) {
	query := `
		SELECT id, user_id, public_key_pem, fingerprint, algorithm, created_at, updated_at
		FROM public_keys
		ORDER BY user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []*store.PublicKey
	for rows.Next() {
		var key store.PublicKey
		if err := rows.Scan(
			&key.ID,
			&key.UserID,
			&key.PublicKeyPEM,
			&key.Fingerprint,
			&key.Algorithm,
			&key.CreatedAt,
			&key.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, &key)
	}

	return keys, rows.Err()
}

// DeletePublicKey removes a user's key.
func (s *SQLiteStore) DeletePublicKey(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM public_keys WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteAllPublicKeys wipes the key table.
func (s *SQLiteStore) DeleteAllPublicKeys(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM public_keys`)
	if err != nil {
		return 0, fmt.Errorf("delete keys: %w", err)
	}
	return result.RowsAffected()
}
