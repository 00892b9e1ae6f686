package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/connectro/connect/internal/auth"
)

func TestListUsersAuthorization(t *testing.T) {
	b := newTestBackend(t)
	h := NewUserHandlers(b.identities, b.tokens)

	_, adolescentToken := b.signUp(t, "Andrei Pop", auth.RoleAdolescent)
	_, liderToken := b.signUp(t, "Maria Ionescu", auth.RoleLider)
	_, adminToken := b.signUp(t, "Elena Vasile", auth.RoleAdmin)

	tests := []struct {
		name       string
		token      string
		raw        bool // send the token without middleware validation
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no credential",
			wantStatus: http.StatusUnauthorized,
			wantCode:   ErrCodeAuthFailed,
		},
		{
			name:       "garbage credential",
			token:      "not-a-real-token",
			raw:        true,
			wantStatus: http.StatusUnauthorized,
			wantCode:   ErrCodeAuthFailed,
		},
		{
			name:       "adolescent",
			token:      adolescentToken,
			wantStatus: http.StatusForbidden,
			wantCode:   ErrCodeForbidden,
		},
		{
			name:       "lider",
			token:      liderToken,
			wantStatus: http.StatusForbidden,
			wantCode:   ErrCodeForbidden,
		},
		{
			name:       "admin",
			token:      adminToken,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			if tt.token != "" {
				if tt.raw {
					// Garbage passes through the soft auth middleware
					// with no claims attached; the handler sees only
					// the raw header.
					req.Header.Set("Authorization", "Bearer "+tt.token)
				} else {
					req = b.withClaims(t, req, tt.token)
				}
			}
			rec := httptest.NewRecorder()
			h.ListUsers(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("error code = %q, want %q", got, tt.wantCode)
				}
			}
		})
	}
}

func TestListUsersInvalidQueryToken(t *testing.T) {
	b := newTestBackend(t)
	h := NewUserHandlers(b.identities, b.tokens)

	req := httptest.NewRequest(http.MethodGet, "/api/users?idToken=not-a-real-token", nil)
	rec := httptest.NewRecorder()
	h.ListUsers(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := errorCode(t, rec); got != ErrCodeAuthFailed {
		t.Errorf("error code = %q, want auth_failed", got)
	}
}

func TestListUsersDirectoryRoles(t *testing.T) {
	b := newTestBackend(t)
	h := NewUserHandlers(b.identities, b.tokens)

	if _, _, err := b.identities.BootstrapAnonymous(context.Background()); err != nil {
		t.Fatalf("BootstrapAnonymous() error = %v", err)
	}
	named, _ := b.signUp(t, "Andrei Pop", auth.RoleAdolescent)
	lider, _ := b.signUp(t, "Maria Ionescu", auth.RoleLider)
	admin, adminToken := b.signUp(t, "Elena Vasile", auth.RoleAdmin)

	req := b.withClaims(t, httptest.NewRequest(http.MethodGet, "/api/users", nil), adminToken)
	rec := httptest.NewRecorder()
	h.ListUsers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ListUsersResponse
	decodeBody(t, rec, &resp)
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if len(resp.Users) != 4 {
		t.Fatalf("len(users) = %d, want 4", len(resp.Users))
	}

	byUID := make(map[string]DirectoryUser, len(resp.Users))
	for _, u := range resp.Users {
		byUID[u.UID] = u
	}

	for _, entry := range resp.Users {
		if entry.IsAnonymous {
			// Anonymous accounts default to adolescent and show a
			// placeholder email.
			if entry.Role != string(auth.RoleAdolescent) {
				t.Errorf("anonymous role = %q, want adolescent", entry.Role)
			}
			if entry.Email != "Anonim" {
				t.Errorf("anonymous email = %q, want Anonim", entry.Email)
			}
		}
	}
	// A named account with no claims yet is "necunoscut" in the
	// directory only; its own session still derives adolescent.
	if got := byUID[named.UID].Role; got != string(auth.RoleUnknown) {
		t.Errorf("unclaimed named role = %q, want necunoscut", got)
	}
	if got := byUID[lider.UID].Role; got != string(auth.RoleLider) {
		t.Errorf("lider role = %q", got)
	}
	if got := byUID[admin.UID].Role; got != string(auth.RoleAdmin) {
		t.Errorf("admin role = %q", got)
	}
}

func TestSetRole(t *testing.T) {
	b := newTestBackend(t)
	h := NewUserHandlers(b.identities, b.tokens)

	target, _ := b.signUp(t, "Andrei Pop", auth.RoleAdolescent)
	_, adminToken := b.signUp(t, "Elena Vasile", auth.RoleAdmin)

	post := func(t *testing.T, body, token string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/set-leader", strings.NewReader(body))
		if token != "" {
			req = b.withClaims(t, req, token)
		}
		rec := httptest.NewRecorder()
		h.SetRole(rec, req)
		return rec
	}

	t.Run("requires admin", func(t *testing.T) {
		_, liderToken := b.signUp(t, "Maria Ionescu", auth.RoleLider)
		rec := post(t, `{"targetUid":"`+target.UID+`","newRole":"lider"}`, liderToken)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("missing target", func(t *testing.T) {
		rec := post(t, `{"targetUid":"","newRole":"lider"}`, adminToken)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if got := errorCode(t, rec); got != ErrCodeValidation {
			t.Errorf("error code = %q, want validation_error", got)
		}
	})

	t.Run("invalid role", func(t *testing.T) {
		for _, role := range []string{"necunoscut", "superadmin", ""} {
			rec := post(t, `{"targetUid":"`+target.UID+`","newRole":"`+role+`"}`, adminToken)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("role %q: status = %d, want 400", role, rec.Code)
				continue
			}
			if got := errorCode(t, rec); got != ErrCodeInvalidRole {
				t.Errorf("role %q: error code = %q, want invalid_role", role, got)
			}
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		rec := post(t, `{"targetUid":"no-such-uid","newRole":"lider"}`, adminToken)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("promotes and revokes", func(t *testing.T) {
		_, targetToken, err := b.identities.ReissueToken(context.Background(), target.UID)
		if err != nil {
			t.Fatalf("ReissueToken() error = %v", err)
		}

		rec := post(t, `{"targetUid":"`+target.UID+`","newRole":"lider"}`, adminToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp SetRoleResponse
		decodeBody(t, rec, &resp)
		if !resp.Success || resp.Message != "Role updated successfully" {
			t.Errorf("response = %+v", resp)
		}

		// The target's outstanding sessions are revoked.
		if _, err := b.tokens.Validate(context.Background(), targetToken); !errors.Is(err, auth.ErrTokenRevoked) {
			t.Errorf("old target credential error = %v, want ErrTokenRevoked", err)
		}

		// The fresh credential carries exactly the new role.
		u, _, err := b.identities.ReissueToken(context.Background(), target.UID)
		if err != nil {
			t.Fatalf("ReissueToken() error = %v", err)
		}
		if got := auth.DeriveRole(u.Claims); got != auth.RoleLider {
			t.Errorf("derived role = %q, want lider", got)
		}
		if err := u.Claims.Integrity(); err != nil {
			t.Errorf("claims integrity after promotion: %v", err)
		}
	})

	t.Run("body token fallback", func(t *testing.T) {
		body := `{"targetUid":"` + target.UID + `","newRole":"adolescent","idToken":"` + adminToken + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/set-leader", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.SetRole(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 via body token", rec.Code)
		}
	})

	t.Run("revoked body token", func(t *testing.T) {
		_, victimToken := b.signUp(t, "Ioana Dinu", auth.RoleAdmin)
		victim, err := b.tokens.Validate(context.Background(), victimToken)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if err := b.identities.RevokeSessions(context.Background(), victim.UID()); err != nil {
			t.Fatalf("RevokeSessions() error = %v", err)
		}

		body := `{"targetUid":"` + target.UID + `","newRole":"lider","idToken":"` + victimToken + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/set-leader", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.SetRole(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if got := errorCode(t, rec); got != ErrCodeTokenRevoked {
			t.Errorf("error code = %q, want token_revoked", got)
		}
	})
}
