package http

import (
	"fmt"
	"testing"
)

func TestDirectMessageRoundtrip(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "password123")
	env.register(t, "bob", "password123")

	var sent DMResponse
	status := env.postJSON(t, "/api/dm", alice.AccessToken, SendDMRequest{
		RecipientUsername: "bob",
		Ciphertext:        "opaque-blob",
		Nonce:             "n1",
		Salt:              "s1",
	}, &sent)
	if status != 201 || sent.ID == 0 {
		t.Fatalf("send dm: status %d, body %+v", status, sent)
	}
	if sent.MessageType != "text" {
		t.Fatalf("message type should default to text, got %q", sent.MessageType)
	}
	// Nobody is online, so the message is stored undelivered.
	if sent.DeliveredAt != "" {
		t.Fatalf("offline recipient must not be marked delivered: %+v", sent)
	}

	var conversation []DMResponse
	status = env.getJSON(t, "/api/dm/bob", alice.AccessToken, &conversation)
	if status != 200 || len(conversation) != 1 {
		t.Fatalf("list dm: status %d, body %+v", status, conversation)
	}
	if conversation[0].Ciphertext != "opaque-blob" {
		t.Fatalf("ciphertext must be relayed untouched: %+v", conversation[0])
	}
}

func TestDirectMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "password123")

	// Unknown recipient.
	status := env.postJSON(t, "/api/dm", alice.AccessToken, SendDMRequest{
		RecipientUsername: "ghost",
		Ciphertext:        "x",
	}, nil)
	if status != 404 {
		t.Fatalf("expected 404 for unknown recipient, got %d", status)
	}

	// Messaging yourself.
	status = env.postJSON(t, "/api/dm", alice.AccessToken, SendDMRequest{
		RecipientUsername: "alice",
		Ciphertext:        "x",
	}, nil)
	if status != 400 {
		t.Fatalf("expected 400 for self message, got %d", status)
	}

	// No token.
	status = env.postJSON(t, "/api/dm", "", SendDMRequest{
		RecipientUsername: "alice",
		Ciphertext:        "x",
	}, nil)
	if status != 401 {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}

func TestMarkReadOnlyByRecipient(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "password123")
	bob := env.register(t, "bob", "password123")

	var sent DMResponse
	status := env.postJSON(t, "/api/dm", alice.AccessToken, SendDMRequest{
		RecipientUsername: "bob",
		Ciphertext:        "blob",
	}, &sent)
	if status != 201 {
		t.Fatalf("send dm: unexpected status %d", status)
	}

	readPath := fmt.Sprintf("/api/dm/%d/read", sent.ID)

	// The sender cannot mark its own message read.
	if status := env.postJSON(t, readPath, alice.AccessToken, struct{}{}, nil); status != 404 {
		t.Fatalf("expected 404 for sender mark-read, got %d", status)
	}

	if status := env.postJSON(t, readPath, bob.AccessToken, struct{}{}, nil); status != 200 {
		t.Fatalf("mark read: unexpected status %d", status)
	}

	var conversation []DMResponse
	env.getJSON(t, "/api/dm/alice", bob.AccessToken, &conversation)
	if len(conversation) != 1 || conversation[0].ReadAt == "" {
		t.Fatalf("read stamp missing: %+v", conversation)
	}
	// Reading implies delivery.
	if conversation[0].DeliveredAt == "" {
		t.Fatalf("delivered stamp missing after read: %+v", conversation)
	}
}
