package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/auth"
	"github.com/vibechat/relay/internal/config"
	"github.com/vibechat/relay/internal/core"
	"github.com/vibechat/relay/internal/store"
	"github.com/vibechat/relay/internal/store/sqlite"
)

type testEnv struct {
	ts       *httptest.Server
	store    store.Store
	auth     *auth.Service
	registry *core.Registry
}

// identityResolver adapts the auth service to the gateway's admission
// interface, mirroring the wiring in the app package.
type identityResolver struct {
	auth  *auth.Service
	store store.Store
}

func (r identityResolver) ResolveIdentity(ctx context.Context, token string) (core.Identity, error) {
	claims, err := r.auth.ValidateAccess(token)
	if err != nil {
		return core.Identity{}, err
	}
	user, err := r.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return core.Identity{}, err
	}
	if !user.IsActive {
		return core.Identity{}, auth.ErrAccountDisabled
	}
	return core.Identity{UserID: user.ID, Username: user.Username}, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "test",
		Audience:   "test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})

	logger := zerolog.Nop()
	registry := core.NewRegistry()
	roomGateway := core.NewGateway(registry, core.OpenAdmission{}, &logger)
	inboxGateway := core.NewGateway(registry, core.TokenAdmission{
		Resolver: identityResolver{auth: authService, store: st},
	}, &logger)

	cfg := config.Default()
	router := NewRouter(Deps{
		Store:        st,
		Auth:         authService,
		RoomGateway:  roomGateway,
		InboxGateway: inboxGateway,
		Registry:     registry,
		Ready:        st.Ping,
		Cfg:          cfg,
		Log:          &logger,
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService, registry: registry}
}

// postJSON fires a JSON POST and decodes the response body into out.
func (e *testEnv) postJSON(t *testing.T, path, token string, body any, out any) int {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req, err := stdhttp.NewRequest("POST", e.ts.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) getJSON(t *testing.T, path, token string, out any) int {
	t.Helper()

	req, err := stdhttp.NewRequest("GET", e.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) delete(t *testing.T, path, token string) int {
	t.Helper()

	req, err := stdhttp.NewRequest("DELETE", e.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

// register creates an account and returns its auth response.
func (e *testEnv) register(t *testing.T, username, password string) AuthResponse {
	t.Helper()

	var resp AuthResponse
	status := e.postJSON(t, "/api/auth/register", "", RegisterRequest{
		Username: username,
		Password: password,
	}, &resp)
	if status != 201 {
		t.Fatalf("register %s: unexpected status %d", username, status)
	}
	return resp
}
