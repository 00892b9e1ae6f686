// Package event provides the calendar event store, its live change feeds
// and the mutation gateway that validates and applies writes.
package event

import (
	"errors"
	"time"
)

// Wire formats for the calendar fields. Dates key the per-day grouping;
// times order events within a day by plain string comparison.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Common errors for event operations.
var (
	ErrEventNotFound      = errors.New("event not found")
	ErrAttendanceNotFound = errors.New("attendance record not found")

	// ErrNotInitialized is returned by every gateway operation when the
	// backing store handle is absent, e.g. the service was started without
	// store configuration. Retryable by an operator, not by the user.
	ErrNotInitialized = errors.New("event store is not initialized")
)

// Validation errors surfaced inline to the initiating user.
var (
	ErrEmptyTitle         = errors.New("event title cannot be empty")
	ErrInvalidTitle       = errors.New("event title fails validation")
	ErrInvalidDescription = errors.New("event description fails validation")
	ErrInvalidDate        = errors.New("event date must be formatted as YYYY-MM-DD")
	ErrInvalidTime        = errors.New("event time must be formatted as HH:mm")
)

// Event is a calendar entry. Events are owned collectively; CreatedBy only
// matters for the creator-may-modify rule.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Date        string     `json:"date"`           // YYYY-MM-DD
	Time        string     `json:"time,omitempty"` // HH:mm, optional
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Attendance is a per-user opt-in marker under an event. The record is
// keyed by the user id, which is what makes repeated RSVPs idempotent.
type Attendance struct {
	UID       string    `json:"uid"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

// Patch carries a partial update. Nil fields are left untouched; the
// stored record is merged, never replaced.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
}

// apply merges the patch into ev in place.
func (p Patch) apply(ev *Event) {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Date != nil {
		ev.Date = *p.Date
	}
	if p.Time != nil {
		ev.Time = *p.Time
	}
}

// validDate reports whether s parses as a calendar day key.
func validDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// validTime reports whether s parses as an HH:mm time of day.
func validTime(s string) bool {
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}
