package api

import (
	"net/http"
	"time"

	"github.com/connectro/connect/internal/middleware"
)

// AttendanceResponse is an attendance record as returned by the API.
type AttendanceResponse struct {
	UID       string    `json:"uid"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

// RSVP handles POST /api/events/{id}/rsvp - records the caller's opt-in.
// Rewriting an existing opt-in refreshes name and timestamp; the head
// count does not change.
func (h *EventHandlers) RSVP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, _ := eventIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	record, err := h.gateway.RSVP(ctx, middleware.GetClaims(ctx), id)
	if err != nil {
		writeGatewayError(w, r, err, "rsvp")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, AttendanceResponse{
		UID:       record.UID,
		UserName:  record.UserName,
		Timestamp: record.Timestamp,
	})
}

// CancelRSVP handles DELETE /api/events/{id}/rsvp.
func (h *EventHandlers) CancelRSVP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, _ := eventIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	if err := h.gateway.CancelRSVP(ctx, middleware.GetClaims(ctx), id); err != nil {
		writeGatewayError(w, r, err, "cancel_rsvp")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAttendance handles GET /api/events/{id}/attendance - the opt-in
// list for one event, oldest first.
func (h *EventHandlers) ListAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, _ := eventIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	records, err := h.gateway.Attendance(ctx, id)
	if err != nil {
		writeGatewayError(w, r, err, "list_attendance")
		return
	}

	responses := make([]AttendanceResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, AttendanceResponse{
			UID:       record.UID,
			UserName:  record.UserName,
			Timestamp: record.Timestamp,
		})
	}
	WriteJSON(w, ctx, http.StatusOK, responses)
}
