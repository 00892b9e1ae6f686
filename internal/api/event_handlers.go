package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/connectro/connect/internal/event"
	"github.com/connectro/connect/internal/middleware"
)

// EventResponse is an event as returned by the API.
type EventResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	CreatedBy   string `json:"created_by"`
}

// CreateEventRequest is the JSON body for creating an event.
type CreateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// UpdateEventRequest is the JSON body for updating an event. Absent
// fields keep their stored values.
type UpdateEventRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
}

// EventHandlers holds dependencies for event HTTP handlers.
type EventHandlers struct {
	gateway *event.Gateway
}

// NewEventHandlers creates a new EventHandlers instance.
func NewEventHandlers(gateway *event.Gateway) *EventHandlers {
	return &EventHandlers{gateway: gateway}
}

func eventResponseFor(ev *event.Event) EventResponse {
	return EventResponse{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Date:        ev.Date,
		Time:        ev.Time,
		CreatedBy:   ev.CreatedBy,
	}
}

// eventIDFromPath extracts the event id from /api/events/{id}[/suffix].
func eventIDFromPath(path string) (id string, rest string) {
	trimmed := strings.TrimPrefix(path, "/api/events/")
	if trimmed == path {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// writeGatewayError maps gateway errors onto the API error envelope.
func writeGatewayError(w http.ResponseWriter, r *http.Request, err error, op string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, event.ErrNotInitialized):
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeBackendNotInitialized, "Backing store is not configured")
	case errors.Is(err, event.ErrForbidden):
		if middleware.GetClaims(ctx) == nil {
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
			return
		}
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Insufficient role for this operation")
	case errors.Is(err, event.ErrEventNotFound):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
	case errors.Is(err, event.ErrAttendanceNotFound):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Attendance record not found")
	case errors.Is(err, event.ErrEmptyTitle):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Title is required")
	case errors.Is(err, event.ErrInvalidTitle):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Title is too long or contains invalid characters")
	case errors.Is(err, event.ErrInvalidDescription):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Description is too long")
	case errors.Is(err, event.ErrInvalidDate):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Date must be YYYY-MM-DD")
	case errors.Is(err, event.ErrInvalidTime):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Time must be HH:mm")
	default:
		slog.ErrorContext(ctx, "event operation failed", "error", err, "op", op)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}

// CreateEvent handles POST /api/events.
func (h *EventHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	ev, err := h.gateway.CreateEvent(ctx, middleware.GetClaims(ctx), event.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Time:        req.Time,
	})
	if err != nil {
		writeGatewayError(w, r, err, "create_event")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, eventResponseFor(ev))
}

// ListEvents handles GET /api/events.
func (h *EventHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.gateway.Events(ctx)
	if err != nil {
		writeGatewayError(w, r, err, "list_events")
		return
	}

	responses := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		responses = append(responses, eventResponseFor(ev))
	}
	WriteJSON(w, ctx, http.StatusOK, responses)
}

// GetEvent handles GET /api/events/{id}.
func (h *EventHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, _ := eventIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	ev, err := h.gateway.Event(ctx, id)
	if err != nil {
		writeGatewayError(w, r, err, "get_event")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, eventResponseFor(ev))
}

// UpdateEvent handles PUT /api/events/{id}.
func (h *EventHandlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, _ := eventIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	ev, err := h.gateway.UpdateEvent(ctx, middleware.GetClaims(ctx), id, event.Patch{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Time:        req.Time,
	})
	if err != nil {
		writeGatewayError(w, r, err, "update_event")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, eventResponseFor(ev))
}

// DeleteEvent handles DELETE /api/events/{id}.
func (h *EventHandlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, _ := eventIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	if err := h.gateway.DeleteEvent(ctx, middleware.GetClaims(ctx), id); err != nil {
		writeGatewayError(w, r, err, "delete_event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
