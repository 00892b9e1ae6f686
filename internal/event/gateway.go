package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/authz"
	"github.com/connectro/connect/internal/validate"
)

// ErrForbidden is returned when the verified credential behind an
// operation does not satisfy the authorization policy. The operation is
// refused with no state change.
var ErrForbidden = errors.New("operation not permitted for this role")

// FallbackUserName is recorded on attendance when the credential carries
// no display name.
const FallbackUserName = "Utilizator"

// CreateInput carries the caller-supplied fields for a new event. Audit
// metadata (CreatedBy, CreatedAt) is stamped by the gateway, never taken
// from the caller.
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty"` // defaults to today
	Time        string `json:"time,omitempty"`
}

// Gateway validates and applies event mutations. Authorization is
// re-checked here against the verified credential regardless of any
// gating the UI already did; this is the security boundary.
type Gateway struct {
	store Store
	now   func() time.Time
}

// NewGateway creates a Gateway over store. A nil store models a service
// started without store configuration: every operation fails with
// ErrNotInitialized until an operator fixes the deployment.
func NewGateway(store Store) *Gateway {
	return &Gateway{store: store, now: time.Now}
}

// Initialized reports whether the backing store handle is present.
func (g *Gateway) Initialized() bool {
	return g.store != nil
}

// Store returns the backing store, or nil when not configured.
func (g *Gateway) Store() Store {
	return g.store
}

// CreateEvent validates input, stamps audit metadata and inserts a new
// event. Requires a role allowed to create events.
func (g *Gateway) CreateEvent(ctx context.Context, claims *auth.Claims, in CreateInput) (*Event, error) {
	if g.store == nil {
		return nil, ErrNotInitialized
	}
	if claims == nil || !authz.CanCreateEvent(auth.DeriveRole(claims.RoleClaims)) {
		return nil, ErrForbidden
	}

	title, err := sanitizeTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description, err := sanitizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	now := g.now()
	date := in.Date
	if date == "" {
		date = now.Format(DateLayout)
	}
	if !validDate(date) {
		return nil, ErrInvalidDate
	}
	if in.Time != "" && !validTime(in.Time) {
		return nil, ErrInvalidTime
	}

	ev := &Event{
		Title:       title,
		Description: description,
		Date:        date,
		Time:        in.Time,
		CreatedBy:   claims.UID(),
		CreatedAt:   now,
	}
	if err := g.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// UpdateEvent merges the patch into the stored event and stamps UpdatedAt.
// Requires the admin or lider role, or being the event's creator.
func (g *Gateway) UpdateEvent(ctx context.Context, claims *auth.Claims, id string, patch Patch) (*Event, error) {
	if g.store == nil {
		return nil, ErrNotInitialized
	}

	ev, err := g.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if claims == nil || !authz.CanModifyEvent(auth.DeriveRole(claims.RoleClaims), claims.UID(), ev.CreatedBy) {
		return nil, ErrForbidden
	}

	// Patched text fields are sanitized before the merge; untouched fields
	// were sanitized when they were stored.
	if patch.Title != nil {
		title, err := sanitizeTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		description, err := sanitizeDescription(*patch.Description)
		if err != nil {
			return nil, err
		}
		patch.Description = &description
	}
	patch.apply(ev)
	if ev.Title == "" {
		return nil, ErrEmptyTitle
	}
	if !validDate(ev.Date) {
		return nil, ErrInvalidDate
	}
	if ev.Time != "" && !validTime(ev.Time) {
		return nil, ErrInvalidTime
	}

	now := g.now()
	ev.UpdatedAt = &now
	if err := g.store.UpdateEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// DeleteEvent hard-deletes an event. The store cascades the attendance
// records under it, so a re-created event id starts with a clean list.
func (g *Gateway) DeleteEvent(ctx context.Context, claims *auth.Claims, id string) error {
	if g.store == nil {
		return ErrNotInitialized
	}

	ev, err := g.store.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if claims == nil || !authz.CanModifyEvent(auth.DeriveRole(claims.RoleClaims), claims.UID(), ev.CreatedBy) {
		return ErrForbidden
	}

	return g.store.DeleteEvent(ctx, id)
}

// RSVP records the caller's opt-in under the event, keyed by user id so
// repeated calls are idempotent. Only authenticated, non-anonymous
// identities may RSVP.
func (g *Gateway) RSVP(ctx context.Context, claims *auth.Claims, eventID string) (*Attendance, error) {
	if g.store == nil {
		return nil, ErrNotInitialized
	}
	if !authz.CanRSVP(claims) {
		return nil, ErrForbidden
	}

	if _, err := g.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	name := claims.Name
	if name == "" {
		name = FallbackUserName
	}
	a := &Attendance{
		UID:       claims.UID(),
		UserName:  name,
		Timestamp: g.now(),
	}
	if err := g.store.UpsertAttendance(ctx, eventID, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CancelRSVP removes the caller's opt-in from the event.
func (g *Gateway) CancelRSVP(ctx context.Context, claims *auth.Claims, eventID string) error {
	if g.store == nil {
		return ErrNotInitialized
	}
	if !authz.CanRSVP(claims) {
		return ErrForbidden
	}
	return g.store.DeleteAttendance(ctx, eventID, claims.UID())
}

// Events lists all events. Read path, no role requirement.
func (g *Gateway) Events(ctx context.Context) ([]*Event, error) {
	if g.store == nil {
		return nil, ErrNotInitialized
	}
	return g.store.ListEvents(ctx)
}

// Event retrieves one event.
func (g *Gateway) Event(ctx context.Context, id string) (*Event, error) {
	if g.store == nil {
		return nil, ErrNotInitialized
	}
	return g.store.GetEvent(ctx, id)
}

// Attendance lists an event's attendance records.
func (g *Gateway) Attendance(ctx context.Context, eventID string) ([]*Attendance, error) {
	if g.store == nil {
		return nil, ErrNotInitialized
	}
	return g.store.ListAttendance(ctx, eventID)
}

// sanitizeTitle bounds, trims and HTML-escapes a caller-supplied title.
func sanitizeTitle(raw string) (string, error) {
	title, err := validate.EventTitle(raw)
	switch {
	case err == nil:
		return title, nil
	case errors.Is(err, validate.ErrEmpty):
		return "", ErrEmptyTitle
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidTitle, err)
	}
}

// sanitizeDescription bounds and HTML-escapes a caller-supplied
// description. Empty is fine.
func sanitizeDescription(raw string) (string, error) {
	description, err := validate.Description(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidDescription, err)
	}
	return description, nil
}
