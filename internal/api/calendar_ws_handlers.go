package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/connectro/connect/internal/calendarview"
	"github.com/connectro/connect/internal/event"
	"github.com/connectro/connect/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS middleware in front of
		// the mux; the upgrader accepts what got through it.
		return true
	},
}

const calendarWriteTimeout = 10 * time.Second

// CalendarWebSocketHandlers holds dependencies for the live calendar feed.
type CalendarWebSocketHandlers struct {
	store  event.Store
	logger *slog.Logger
}

// NewCalendarWebSocketHandlers creates a new CalendarWebSocketHandlers instance.
func NewCalendarWebSocketHandlers(store event.Store, logger *slog.Logger) *CalendarWebSocketHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarWebSocketHandlers{store: store, logger: logger}
}

// Subscribe handles GET /api/calendar/ws - a WebSocket feed of calendar
// snapshots. Each connection runs its own synchronizer; every change to
// the event collection or to any event's attendance pushes a fresh full
// snapshot, so clients replace state rather than patch it.
func (h *CalendarWebSocketHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := middleware.GetClaims(ctx)
	if claims == nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}
	if h.store == nil {
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeBackendNotInitialized, "Backing store is not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	// Snapshots are funneled through a coalescing channel so a slow
	// client sees the latest state instead of a growing backlog.
	snapshots := make(chan calendarview.Snapshot, 1)
	view := calendarview.New(h.store, h.logger, func(snap calendarview.Snapshot) {
		select {
		case snapshots <- snap:
		default:
			select {
			case <-snapshots:
			default:
			}
			select {
			case snapshots <- snap:
			default:
			}
		}
	})

	if err := view.Start(ctx, claims); err != nil {
		h.logger.ErrorContext(ctx, "failed to start calendar synchronizer", "error", err)
		_ = conn.Close()
		return
	}

	requestID := middleware.GetRequestID(ctx)
	h.logger.InfoContext(ctx, "calendar client connected",
		"user_uid", claims.UID(), "request_id", requestID)

	done := make(chan struct{})

	// Writer: push snapshots until the reader goroutine signals closure.
	go func() {
		for {
			select {
			case <-done:
				return
			case snap := <-snapshots:
				if err := conn.SetWriteDeadline(time.Now().Add(calendarWriteTimeout)); err != nil {
					return
				}
				if err := conn.WriteJSON(snap); err != nil {
					h.logger.DebugContext(ctx, "failed to write calendar snapshot", "error", err)
					return
				}
			}
		}
	}()

	// Reader: clients send nothing; reading detects disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.WarnContext(ctx, "calendar connection closed unexpectedly", "error", err)
			}
			break
		}
	}

	close(done)
	view.Stop()
	_ = conn.Close()
	h.logger.InfoContext(ctx, "calendar client disconnected",
		"user_uid", claims.UID(), "request_id", requestID)
}
