package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/authz"
	"github.com/connectro/connect/internal/identity"
	"github.com/connectro/connect/internal/middleware"
)

// Placeholder emails shown in the directory for accounts without one.
// Anonymous accounts never have an email; a named account can lack one
// only through legacy data.
const (
	emailPlaceholderAnonymous = "Anonim"
	emailPlaceholderMissing   = "Fără Email"
)

// DirectoryUser is a user entry in the admin directory response.
type DirectoryUser struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	IsAnonymous  bool      `json:"is_anonymous"`
	CreationTime time.Time `json:"creation_time"`
	Role         string    `json:"role"`
}

// ListUsersResponse is the JSON body for GET /api/users.
type ListUsersResponse struct {
	Success bool            `json:"success"`
	Users   []DirectoryUser `json:"users"`
}

// SetRoleRequest is the JSON body for POST /api/set-leader.
type SetRoleRequest struct {
	TargetUID string `json:"targetUid"`
	NewRole   string `json:"newRole"`
	IDToken   string `json:"idToken,omitempty"`
}

// SetRoleResponse is the JSON body for POST /api/set-leader.
type SetRoleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserHandlers holds dependencies for the admin user directory endpoints.
type UserHandlers struct {
	identities *identity.Service
	tokens     *auth.TokenService
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(identities *identity.Service, tokens *auth.TokenService) *UserHandlers {
	return &UserHandlers{identities: identities, tokens: tokens}
}

// adminClaims resolves the caller's claims, accepting the request body
// token as a fallback for the legacy clients that send it there. Returns
// nil after writing the error response.
func (h *UserHandlers) adminClaims(w http.ResponseWriter, r *http.Request, bodyToken string) *auth.Claims {
	ctx := r.Context()

	claims := middleware.GetClaims(ctx)
	if claims == nil && bodyToken != "" {
		validated, err := h.tokens.Validate(ctx, bodyToken)
		if err == nil {
			claims = validated
		} else if errors.Is(err, auth.ErrTokenRevoked) {
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeTokenRevoked, "Credential has been revoked")
			return nil
		}
	}
	// Missing and invalid credentials are both 401; 403 is reserved for
	// a verified credential whose claims lack the admin role.
	if claims == nil {
		if middleware.BearerToken(r) == "" && bodyToken == "" {
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		} else {
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid credential")
		}
		return nil
	}

	if err := claims.RoleClaims.Integrity(); err != nil {
		slog.WarnContext(ctx, "ambiguous claim set on admin request",
			"error", err, "user_uid", claims.UID())
	}

	if !authz.CanManageRoles(auth.DeriveRole(claims.RoleClaims)) {
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Admin access required")
		return nil
	}
	return claims
}

// ListUsers handles GET /api/users - the admin-only account directory.
func (h *UserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.adminClaims(w, r, "") == nil {
		return
	}

	entries, err := h.identities.ListUsers(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list users", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list users")
		return
	}

	users := make([]DirectoryUser, 0, len(entries))
	for _, e := range entries {
		email := e.Email
		if email == "" {
			if e.IsAnonymous {
				email = emailPlaceholderAnonymous
			} else {
				email = emailPlaceholderMissing
			}
		}
		users = append(users, DirectoryUser{
			UID:          e.UID,
			Email:        email,
			DisplayName:  e.DisplayName,
			IsAnonymous:  e.IsAnonymous,
			CreationTime: e.CreationTime,
			Role:         string(e.Role),
		})
	}

	WriteJSON(w, ctx, http.StatusOK, ListUsersResponse{Success: true, Users: users})
}

// SetRole handles POST /api/set-leader - assigns a role to a target user.
// The full claim set is replaced and the target's sessions are revoked, so
// the change takes effect on their next credential refresh.
func (h *UserHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	claims := h.adminClaims(w, r, req.IDToken)
	if claims == nil {
		return
	}

	if req.TargetUID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "targetUid is required")
		return
	}
	role := auth.Role(req.NewRole)
	if !role.Valid() {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidRole, "newRole must be admin, lider or adolescent")
		return
	}

	if err := h.identities.SetRole(ctx, req.TargetUID, role); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Target user not found")
			return
		}
		slog.ErrorContext(ctx, "failed to set role",
			"error", err, "target_uid", req.TargetUID, "new_role", req.NewRole)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update role")
		return
	}

	slog.InfoContext(ctx, "role assigned",
		"admin_uid", claims.UID(), "target_uid", req.TargetUID, "new_role", req.NewRole)
	WriteJSON(w, ctx, http.StatusOK, SetRoleResponse{Success: true, Message: "Role updated successfully"})
}
