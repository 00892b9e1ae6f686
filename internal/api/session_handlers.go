// Package api provides HTTP handlers for the Connect API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/identity"
	"github.com/connectro/connect/internal/middleware"
)

// SessionResponse is the JSON body returned by session endpoints.
type SessionResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Anonymous   bool   `json:"anonymous"`
	Role        string `json:"role"`
	IDToken     string `json:"id_token,omitempty"`
}

// LoginRequest is the JSON body for the name login.
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SessionHandlers holds dependencies for session HTTP handlers.
type SessionHandlers struct {
	identities     *identity.Service
	tokens         *auth.TokenService
	allowAnonymous bool
}

// NewSessionHandlers creates a new SessionHandlers instance. allowAnonymous
// controls whether the anonymous bootstrap endpoint is open; named login is
// always available.
func NewSessionHandlers(identities *identity.Service, tokens *auth.TokenService, allowAnonymous bool) *SessionHandlers {
	return &SessionHandlers{identities: identities, tokens: tokens, allowAnonymous: allowAnonymous}
}

func sessionResponseFor(u *identity.User, token string) SessionResponse {
	return SessionResponse{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Anonymous:   u.IsAnonymous,
		Role:        string(auth.DeriveRole(u.Claims)),
		IDToken:     token,
	}
}

// Bootstrap handles POST /api/session - creates an anonymous session.
func (h *SessionHandlers) Bootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.allowAnonymous {
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Anonymous sessions are disabled")
		return
	}

	u, token, err := h.identities.BootstrapAnonymous(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to bootstrap anonymous session", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create session")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, sessionResponseFor(u, token))
}

// Login handles POST /api/session/login - the name-based sign-in.
func (h *SessionHandlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	u, token, err := h.identities.LoginWithName(ctx, req.Name, req.Password)
	switch {
	case errors.Is(err, identity.ErrEmptyName):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Name is required")
		return
	case errors.Is(err, identity.ErrInvalidCredentials):
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid credentials")
		return
	case err != nil:
		slog.ErrorContext(ctx, "login failed", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to sign in")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, sessionResponseFor(u, token))
}

// Current handles GET /api/session - returns the session behind the credential.
func (h *SessionHandlers) Current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := middleware.GetClaims(ctx)
	if claims == nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	u, err := h.identities.GetUser(ctx, claims.UID())
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load user", "error", err, "user_uid", claims.UID())
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load session")
		return
	}

	resp := sessionResponseFor(u, "")
	WriteJSON(w, ctx, http.StatusOK, resp)
}

// Logout handles POST /api/session/logout - revokes every outstanding
// credential for the signed-in user. Idempotent; a second call with the
// now-revoked token fails validation upstream.
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := middleware.GetClaims(ctx)
	if claims == nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	if err := h.identities.RevokeSessions(ctx, claims.UID()); err != nil {
		slog.ErrorContext(ctx, "failed to revoke sessions", "error", err, "user_uid", claims.UID())
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to sign out")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, map[string]bool{"success": true})
}

// Refresh handles POST /api/session/refresh - reissues the credential so a
// server-side role change takes effect immediately. A revoked credential
// fails with token_revoked; the client signs out and starts over.
func (h *SessionHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := middleware.BearerToken(r)
	if token == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	claims, err := h.tokens.Validate(ctx, token)
	switch {
	case errors.Is(err, auth.ErrTokenRevoked):
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeTokenRevoked, "Credential has been revoked")
		return
	case err != nil:
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid credential")
		return
	}

	u, fresh, err := h.identities.ReissueToken(ctx, claims.UID())
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		slog.ErrorContext(ctx, "failed to refresh credential", "error", err, "user_uid", claims.UID())
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to refresh session")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, sessionResponseFor(u, fresh))
}
