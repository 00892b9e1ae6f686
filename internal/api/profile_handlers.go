package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/connectro/connect/internal/identity"
	"github.com/connectro/connect/internal/middleware"
	"github.com/connectro/connect/internal/profile"
	"github.com/connectro/connect/internal/validate"
)

// ProfileResponse is the JSON body returned by profile endpoints.
type ProfileResponse struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"display_name,omitempty"`
	HasAvatar   bool      `json:"has_avatar"`
	AvatarType  string    `json:"avatar_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// UpdateProfileRequest is the JSON body for profile updates.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// ProfileHandlers holds dependencies for profile HTTP handlers.
type ProfileHandlers struct {
	profiles   *profile.Service
	identities *identity.Service
}

// NewProfileHandlers creates a new ProfileHandlers instance.
func NewProfileHandlers(profiles *profile.Service, identities *identity.Service) *ProfileHandlers {
	return &ProfileHandlers{profiles: profiles, identities: identities}
}

func profileResponseFor(p *profile.Profile) ProfileResponse {
	return ProfileResponse{
		UID:         p.UID,
		DisplayName: p.DisplayName,
		HasAvatar:   len(p.Avatar) > 0,
		AvatarType:  p.AvatarType,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ownerUID authorizes the request for the profile at uid. Profiles are
// private: only the signed-in owner may read or write them.
func (h *ProfileHandlers) ownerUID(w http.ResponseWriter, r *http.Request, uid string) bool {
	ctx := r.Context()
	claims := middleware.GetClaims(ctx)
	if claims == nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return false
	}
	if claims.UID() != uid {
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Profiles are private")
		return false
	}
	return true
}

// Get handles GET /api/profiles/{uid}. A missing profile record falls back
// to the identity's display name so a fresh account still has a profile.
func (h *ProfileHandlers) Get(w http.ResponseWriter, r *http.Request, uid string) {
	ctx := r.Context()
	if !h.ownerUID(w, r, uid) {
		return
	}

	p, err := h.profiles.Get(ctx, uid)
	if errors.Is(err, profile.ErrProfileNotFound) {
		u, uerr := h.identities.GetUser(ctx, uid)
		if uerr != nil {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Profile not found")
			return
		}
		WriteJSON(w, ctx, http.StatusOK, ProfileResponse{UID: uid, DisplayName: u.DisplayName})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get profile", "uid", uid, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get profile")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, profileResponseFor(p))
}

// Update handles PUT /api/profiles/{uid}.
func (h *ProfileHandlers) Update(w http.ResponseWriter, r *http.Request, uid string) {
	ctx := r.Context()
	if !h.ownerUID(w, r, uid) {
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	p, err := h.profiles.UpdateDisplayName(ctx, uid, req.DisplayName)
	if err != nil {
		if errors.Is(err, validate.ErrEmpty) || errors.Is(err, validate.ErrStringTooLong) ||
			errors.Is(err, validate.ErrInvalidCharacters) {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid display name")
			return
		}
		slog.ErrorContext(ctx, "failed to update profile", "uid", uid, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update profile")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, profileResponseFor(p))
}

// GetAvatar handles GET /api/profiles/{uid}/avatar, serving the raw image.
func (h *ProfileHandlers) GetAvatar(w http.ResponseWriter, r *http.Request, uid string) {
	ctx := r.Context()
	if !h.ownerUID(w, r, uid) {
		return
	}

	p, err := h.profiles.Get(ctx, uid)
	if errors.Is(err, profile.ErrProfileNotFound) || (err == nil && len(p.Avatar) == 0) {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "No avatar set")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get avatar", "uid", uid, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get avatar")
		return
	}

	w.Header().Set("Content-Type", p.AvatarType)
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(p.Avatar); err != nil {
		slog.WarnContext(ctx, "failed to write avatar response", "uid", uid, "error", err)
	}
}

// SetAvatar handles PUT /api/profiles/{uid}/avatar. The body is the raw
// image; the type is sniffed from content, not trusted from headers.
func (h *ProfileHandlers) SetAvatar(w http.ResponseWriter, r *http.Request, uid string) {
	ctx := r.Context()
	if !h.ownerUID(w, r, uid) {
		return
	}

	// One byte over the limit is enough to distinguish too-large from
	// exactly-at-limit after the bounded read.
	limit := h.profiles.AvatarMaxBytes()
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return
	}

	p, err := h.profiles.SetAvatar(ctx, uid, data)
	if err != nil {
		switch {
		case errors.Is(err, validate.ErrFileTooLarge):
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeValidation, "Avatar image too large")
		case errors.Is(err, validate.ErrInvalidMIMEType):
			WriteError(w, ctx, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "Avatar must be a PNG or JPEG image")
		case len(data) == 0:
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Empty request body")
		default:
			slog.ErrorContext(ctx, "failed to set avatar", "uid", uid, "error", err)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to set avatar")
		}
		return
	}
	WriteJSON(w, ctx, http.StatusOK, profileResponseFor(p))
}
