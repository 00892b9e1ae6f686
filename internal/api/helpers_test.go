package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/event"
	"github.com/connectro/connect/internal/identity"
	"github.com/connectro/connect/internal/middleware"
	"github.com/connectro/connect/internal/profile"
)

const (
	testSecret   = "wJ6Qk8Qn1v9Qw1Zb2l8Qk9J3p6Qk8Qn1v9Qw1Zb2l8Qk="
	testPassword = "parola-comunitatii"
)

// testBackend bundles in-memory services for handler tests.
type testBackend struct {
	identities  *identity.Service
	tokens      *auth.TokenService
	revocations auth.RevocationStore
	store       *event.InMemoryStore
	gateway     *event.Gateway
	profiles    *profile.Service
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	revocations := auth.NewInMemoryRevocationStore()
	tokens := auth.NewTokenService(testSecret, revocations)
	identities, err := identity.NewService(identity.NewInMemoryRepository(), tokens, revocations, testPassword, logger)
	if err != nil {
		t.Fatalf("failed to build identity service: %v", err)
	}
	store := event.NewInMemoryStore()
	return &testBackend{
		identities:  identities,
		tokens:      tokens,
		revocations: revocations,
		store:       store,
		gateway:     event.NewGateway(store),
		profiles:    profile.NewService(profile.NewInMemoryRepository(), 0, logger),
	}
}

// signUp creates a named account with the given role and returns it with a
// fresh credential carrying that role.
func (b *testBackend) signUp(t *testing.T, name string, role auth.Role) (*identity.User, string) {
	t.Helper()
	u, token, err := b.identities.LoginWithName(context.Background(), name, testPassword)
	if err != nil {
		t.Fatalf("failed to sign up %q: %v", name, err)
	}
	if role != auth.RoleAdolescent {
		if err := b.identities.SetRole(context.Background(), u.UID, role); err != nil {
			t.Fatalf("failed to assign role %q: %v", role, err)
		}
		u, token, err = b.identities.ReissueToken(context.Background(), u.UID)
		if err != nil {
			t.Fatalf("failed to reissue credential: %v", err)
		}
	}
	return u, token
}

// withClaims attaches validated claims the way the auth middleware does.
func (b *testBackend) withClaims(t *testing.T, r *http.Request, token string) *http.Request {
	t.Helper()
	claims, err := b.tokens.Validate(r.Context(), token)
	if err != nil {
		t.Fatalf("failed to validate test credential: %v", err)
	}
	return r.WithContext(middleware.SetClaims(r.Context(), claims))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// errorCode extracts the code from the standard error envelope.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	return resp.Error.Code
}
