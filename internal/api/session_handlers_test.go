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

func TestBootstrapCreatesAnonymousSession(t *testing.T) {
	b := newTestBackend(t)
	h := NewSessionHandlers(b.identities, b.tokens, true)

	rec := httptest.NewRecorder()
	h.Bootstrap(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var resp SessionResponse
	decodeBody(t, rec, &resp)
	if !resp.Anonymous {
		t.Error("bootstrap session must be anonymous")
	}
	if resp.Role != string(auth.RoleAdolescent) {
		t.Errorf("role = %q, want adolescent", resp.Role)
	}
	if resp.IDToken == "" {
		t.Error("bootstrap must return a credential")
	}
	if _, err := b.tokens.Validate(context.Background(), resp.IDToken); err != nil {
		t.Errorf("issued credential does not validate: %v", err)
	}
}

func TestBootstrapDisabled(t *testing.T) {
	b := newTestBackend(t)
	h := NewSessionHandlers(b.identities, b.tokens, false)

	rec := httptest.NewRecorder()
	h.Bootstrap(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := errorCode(t, rec); got != ErrCodeForbidden {
		t.Errorf("error code = %q, want forbidden", got)
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "valid credentials",
			body:       `{"name":"Andrei Pop","password":"` + testPassword + `"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "empty name",
			body:       `{"name":"","password":"` + testPassword + `"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "wrong password",
			body:       `{"name":"Andrei Pop","password":"gresit"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   ErrCodeAuthFailed,
		},
		{
			name:       "malformed body",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t)
			h := NewSessionHandlers(b.identities, b.tokens, true)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/session/login", strings.NewReader(tt.body))
			h.Login(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("error code = %q, want %q", got, tt.wantCode)
				}
				return
			}
			var resp SessionResponse
			decodeBody(t, rec, &resp)
			if resp.Anonymous {
				t.Error("named login must not be anonymous")
			}
			if resp.Role != string(auth.RoleAdolescent) {
				t.Errorf("role = %q, want adolescent for unclaimed account", resp.Role)
			}
			if resp.Email != "andrei.pop@connect.ro" {
				t.Errorf("email = %q, want synthesized andrei.pop@connect.ro", resp.Email)
			}
		})
	}
}

func TestLoginReusesAccount(t *testing.T) {
	b := newTestBackend(t)
	h := NewSessionHandlers(b.identities, b.tokens, true)

	login := func(name string) SessionResponse {
		rec := httptest.NewRecorder()
		body := `{"name":"` + name + `","password":"` + testPassword + `"}`
		h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/session/login", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("login status = %d", rec.Code)
		}
		var resp SessionResponse
		decodeBody(t, rec, &resp)
		return resp
	}

	first := login("Ștefan Ilieș")
	second := login("  ȘTEFAN ilieș ")
	if first.UID != second.UID {
		t.Errorf("case and diacritic variants created two accounts: %q vs %q", first.UID, second.UID)
	}
}

func TestCurrentSession(t *testing.T) {
	b := newTestBackend(t)
	h := NewSessionHandlers(b.identities, b.tokens, true)

	t.Run("without credential", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Current(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("with credential", func(t *testing.T) {
		u, token := b.signUp(t, "Maria Ionescu", auth.RoleLider)
		rec := httptest.NewRecorder()
		req := b.withClaims(t, httptest.NewRequest(http.MethodGet, "/api/session", nil), token)
		h.Current(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp SessionResponse
		decodeBody(t, rec, &resp)
		if resp.UID != u.UID {
			t.Errorf("uid = %q, want %q", resp.UID, u.UID)
		}
		if resp.Role != string(auth.RoleLider) {
			t.Errorf("role = %q, want lider", resp.Role)
		}
		if resp.IDToken != "" {
			t.Error("current session must not reissue a credential")
		}
	})
}

func TestLogoutRevokesSessions(t *testing.T) {
	b := newTestBackend(t)
	h := NewSessionHandlers(b.identities, b.tokens, true)

	_, token := b.signUp(t, "Andrei Pop", auth.RoleAdolescent)

	rec := httptest.NewRecorder()
	req := b.withClaims(t, httptest.NewRequest(http.MethodPost, "/api/session/logout", nil), token)
	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, err := b.tokens.Validate(req.Context(), token); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Errorf("Validate() after logout = %v, want ErrTokenRevoked", err)
	}
}

func TestRefresh(t *testing.T) {
	b := newTestBackend(t)
	h := NewSessionHandlers(b.identities, b.tokens, true)

	t.Run("missing credential", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if got := errorCode(t, rec); got != ErrCodeAuthFailed {
			t.Errorf("error code = %q, want auth_failed", got)
		}
	})

	t.Run("picks up promotion", func(t *testing.T) {
		u, token := b.signUp(t, "Maria Ionescu", auth.RoleAdolescent)
		if err := b.identities.SetRole(context.Background(), u.UID, auth.RoleLider); err != nil {
			t.Fatalf("SetRole() error = %v", err)
		}
		// The promotion revoked the old credential; refresh reports that
		// so the client can sign out and start over.
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		h.Refresh(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401 for revoked credential", rec.Code)
		}
		if got := errorCode(t, rec); got != ErrCodeTokenRevoked {
			t.Errorf("error code = %q, want token_revoked", got)
		}

		// A live credential refreshes to the new role.
		_, fresh, err := b.identities.ReissueToken(context.Background(), u.UID)
		if err != nil {
			t.Fatalf("ReissueToken() error = %v", err)
		}
		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+fresh)
		h.Refresh(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp SessionResponse
		decodeBody(t, rec, &resp)
		if resp.Role != string(auth.RoleLider) {
			t.Errorf("role = %q, want lider after refresh", resp.Role)
		}
		if resp.IDToken == "" {
			t.Error("refresh must return a fresh credential")
		}
	})
}
