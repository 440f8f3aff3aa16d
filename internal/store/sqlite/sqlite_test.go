package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/vibechat/relay/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, username string) *store.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), username, "hash", username)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := seedUser(t, s, "alice")
	if !created.IsActive {
		t.Fatalf("new user should be active")
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if byName.ID != created.ID {
		t.Errorf("expected id %d, got %d", created.ID, byName.ID)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Usernames are unique.
	if _, err := s.CreateUser(ctx, "alice", "hash2", "alice"); err == nil {
		t.Errorf("duplicate username should fail")
	}
}

func TestGetOrCreateRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}
	if first.LastMessageAt != nil {
		t.Errorf("fresh room should have no last_message_at")
	}

	second, err := s.GetOrCreateRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("GetOrCreateRoom (existing) failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same room, got %d and %d", first.ID, second.ID)
	}
}

func TestRoomMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.GetOrCreateRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}

	for _, content := range []string{"first", "second", "third"} {
		msg := &store.RoomMessage{RoomID: room.ID, Username: "alice", Content: content}
		if err := s.SaveRoomMessage(ctx, msg); err != nil {
			t.Fatalf("SaveRoomMessage failed: %v", err)
		}
		if msg.ID == 0 {
			t.Fatalf("message id not set")
		}
	}

	room, err = s.GetRoomBySlug(ctx, "lobby")
	if err != nil {
		t.Fatalf("GetRoomBySlug failed: %v", err)
	}
	if room.LastMessageAt == nil {
		t.Errorf("last_message_at should be set after a save")
	}

	messages, err := s.ListRoomMessages(ctx, room.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListRoomMessages failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "first" {
		t.Errorf("expected [first second], got %+v", messages)
	}

	messages, err = s.ListRoomMessages(ctx, room.ID, 10, 2)
	if err != nil {
		t.Fatalf("ListRoomMessages (offset) failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "third" {
		t.Errorf("expected [third], got %+v", messages)
	}

	deleted, err := s.ClearRoomMessages(ctx, room.ID)
	if err != nil {
		t.Fatalf("ClearRoomMessages failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	room, err = s.GetRoomBySlug(ctx, "lobby")
	if err != nil {
		t.Fatalf("GetRoomBySlug failed: %v", err)
	}
	if room.LastMessageAt != nil {
		t.Errorf("last_message_at should be reset after clear")
	}
}

func TestDirectMessageConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	send := func(from, to int64, ciphertext string) *store.DirectMessage {
		msg := &store.DirectMessage{
			SenderID:    from,
			RecipientID: to,
			Ciphertext:  ciphertext,
			Nonce:       "n",
			Salt:        "s",
			MessageType: "text",
		}
		if err := s.SaveDirectMessage(ctx, msg); err != nil {
			t.Fatalf("SaveDirectMessage failed: %v", err)
		}
		return msg
	}

	send(alice.ID, bob.ID, "a->b 1")
	send(bob.ID, alice.ID, "b->a 1")
	send(alice.ID, carol.ID, "a->c 1") // different conversation

	messages, err := s.ListDirectMessages(ctx, alice.ID, bob.ID, 50)
	if err != nil {
		t.Fatalf("ListDirectMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Ciphertext != "a->b 1" || messages[1].Ciphertext != "b->a 1" {
		t.Errorf("unexpected order: %+v", messages)
	}

	// The limit keeps the newest messages.
	messages, err = s.ListDirectMessages(ctx, alice.ID, bob.ID, 1)
	if err != nil {
		t.Fatalf("ListDirectMessages (limit) failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Ciphertext != "b->a 1" {
		t.Errorf("expected newest message, got %+v", messages)
	}
}

func TestMarkDeliveredAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	msg := &store.DirectMessage{
		SenderID:    alice.ID,
		RecipientID: bob.ID,
		Ciphertext:  "ct",
		MessageType: "text",
	}
	if err := s.SaveDirectMessage(ctx, msg); err != nil {
		t.Fatalf("SaveDirectMessage failed: %v", err)
	}

	if err := s.MarkDelivered(ctx, msg.ID); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	// Only the recipient may mark a message read.
	if err := s.MarkRead(ctx, msg.ID, alice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("sender marking read should fail, got %v", err)
	}
	if err := s.MarkRead(ctx, msg.ID, bob.ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	// A second read is a no-op reported as not found.
	if err := s.MarkRead(ctx, msg.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double read should report not found, got %v", err)
	}

	messages, err := s.ListDirectMessages(ctx, alice.ID, bob.ID, 10)
	if err != nil {
		t.Fatalf("ListDirectMessages failed: %v", err)
	}
	if messages[0].DeliveredAt == nil || messages[0].ReadAt == nil {
		t.Errorf("expected delivered and read stamps, got %+v", messages[0])
	}
}

func TestContacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	if err := s.AddContact(ctx, alice.ID, carol.ID); err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if err := s.AddContact(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if err := s.AddContact(ctx, alice.ID, bob.ID); err == nil {
		t.Errorf("duplicate contact should fail")
	}

	entries, err := s.ListContacts(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListContacts failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Username != "bob" || entries[1].Username != "carol" {
		t.Errorf("expected [bob carol], got %+v", entries)
	}

	// Contacts are one-directional.
	entries, err = s.ListContacts(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListContacts failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no contacts for bob, got %+v", entries)
	}

	if err := s.RemoveContact(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("RemoveContact failed: %v", err)
	}
	if err := s.RemoveContact(ctx, alice.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPublicKeyUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")

	key := &store.PublicKey{
		UserID:       alice.ID,
		PublicKeyPEM: "pem-v1",
		Fingerprint:  "fp-v1",
		Algorithm:    "RSA-4096",
	}
	created, err := s.UpsertPublicKey(ctx, key)
	if err != nil {
		t.Fatalf("UpsertPublicKey failed: %v", err)
	}
	if !created {
		t.Errorf("first upsert should report created")
	}

	key.PublicKeyPEM = "pem-v2"
	key.Fingerprint = "fp-v2"
	created, err = s.UpsertPublicKey(ctx, key)
	if err != nil {
		t.Fatalf("UpsertPublicKey (replace) failed: %v", err)
	}
	if created {
		t.Errorf("second upsert should report replaced")
	}

	stored, err := s.GetPublicKeyByUserID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetPublicKeyByUserID failed: %v", err)
	}
	if stored.PublicKeyPEM != "pem-v2" || stored.Fingerprint != "fp-v2" {
		t.Errorf("key not replaced: %+v", stored)
	}

	keys, err := s.ListPublicKeys(ctx)
	if err != nil {
		t.Fatalf("ListPublicKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("expected a single key row, got %d", len(keys))
	}

	if err := s.DeletePublicKey(ctx, alice.ID); err != nil {
		t.Fatalf("DeletePublicKey failed: %v", err)
	}
	if err := s.DeletePublicKey(ctx, alice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAllPublicKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		user := seedUser(t, s, name)
		if _, err := s.UpsertPublicKey(ctx, &store.PublicKey{
			UserID:       user.ID,
			PublicKeyPEM: "pem",
			Fingerprint:  "fp",
			Algorithm:    "RSA-4096",
		}); err != nil {
			t.Fatalf("UpsertPublicKey failed: %v", err)
		}
	}

	removed, err := s.DeleteAllPublicKeys(ctx)
	if err != nil {
		t.Fatalf("DeleteAllPublicKeys failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
}
