package http

import (
	"fmt"
	"testing"
)

func TestContactLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "password123")
	bob := env.register(t, "bob", "password123")

	status := env.postJSON(t, "/api/contacts", alice.AccessToken, AddContactRequest{
		Username: "bob",
	}, nil)
	if status != 201 {
		t.Fatalf("add contact: unexpected status %d", status)
	}

	// Duplicates conflict, self and unknown users are rejected.
	if status := env.postJSON(t, "/api/contacts", alice.AccessToken, AddContactRequest{Username: "bob"}, nil); status != 409 {
		t.Fatalf("expected 409 for duplicate contact, got %d", status)
	}
	if status := env.postJSON(t, "/api/contacts", alice.AccessToken, AddContactRequest{Username: "alice"}, nil); status != 400 {
		t.Fatalf("expected 400 for self contact, got %d", status)
	}
	if status := env.postJSON(t, "/api/contacts", alice.AccessToken, AddContactRequest{Username: "ghost"}, nil); status != 404 {
		t.Fatalf("expected 404 for unknown user, got %d", status)
	}

	var contacts []ContactResponse
	if status := env.getJSON(t, "/api/contacts", alice.AccessToken, &contacts); status != 200 {
		t.Fatalf("list contacts: unexpected status %d", status)
	}
	if len(contacts) != 1 || contacts[0].Username != "bob" {
		t.Fatalf("unexpected contacts: %+v", contacts)
	}

	// The relation is one-directional.
	var bobContacts []ContactResponse
	env.getJSON(t, "/api/contacts", bob.AccessToken, &bobContacts)
	if len(bobContacts) != 0 {
		t.Fatalf("bob should have no contacts, got %+v", bobContacts)
	}

	removePath := fmt.Sprintf("/api/contacts/%d", contacts[0].ContactID)
	if status := env.delete(t, removePath, alice.AccessToken); status != 200 {
		t.Fatalf("remove contact: unexpected status %d", status)
	}
	if status := env.delete(t, removePath, alice.AccessToken); status != 404 {
		t.Fatalf("expected 404 for removed contact, got %d", status)
	}
}

func TestKeyPublishAndFetch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "password123")
	bob := env.register(t, "bob", "password123")

	var uploaded KeyResponse
	status := env.postJSON(t, "/api/keys", alice.AccessToken, UploadKeyRequest{
		PublicKeyPEM: "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----",
	}, &uploaded)
	if status != 201 {
		t.Fatalf("upload key: unexpected status %d", status)
	}
	if uploaded.Fingerprint == "" || uploaded.Algorithm != "RSA-4096" {
		t.Fatalf("unexpected key response: %+v", uploaded)
	}

	// Replacing the key is a 200 and changes the fingerprint.
	var replaced KeyResponse
	status = env.postJSON(t, "/api/keys", alice.AccessToken, UploadKeyRequest{
		PublicKeyPEM: "-----BEGIN PUBLIC KEY-----\nxyz\n-----END PUBLIC KEY-----",
	}, &replaced)
	if status != 200 {
		t.Fatalf("replace key: unexpected status %d", status)
	}
	if replaced.Fingerprint == uploaded.Fingerprint {
		t.Fatalf("fingerprint should change with the key")
	}

	var fetched KeyResponse
	status = env.getJSON(t, "/api/keys/alice", bob.AccessToken, &fetched)
	if status != 200 || fetched.Fingerprint != replaced.Fingerprint {
		t.Fatalf("fetch key: status %d, body %+v", status, fetched)
	}

	// "me" resolves to the caller's own key.
	var mine KeyResponse
	status = env.getJSON(t, "/api/keys/me", alice.AccessToken, &mine)
	if status != 200 || mine.Fingerprint != replaced.Fingerprint {
		t.Fatalf("fetch own key: status %d, body %+v", status, mine)
	}

	if status := env.getJSON(t, "/api/keys/bob", alice.AccessToken, nil); status != 404 {
		t.Fatalf("expected 404 for unpublished key, got %d", status)
	}
	if status := env.getJSON(t, "/api/keys/ghost", alice.AccessToken, nil); status != 404 {
		t.Fatalf("expected 404 for unknown user, got %d", status)
	}
}
