package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// RouterConfig bundles the handler groups mounted by NewRouter. Nil groups
// are skipped so tests can mount a subset.
type RouterConfig struct {
	Sessions *SessionHandlers
	Users    *UserHandlers
	Events   *EventHandlers
	Profiles *ProfileHandlers
	Calendar *CalendarWebSocketHandlers
	Health   *HealthHandlers

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// AuthLimiter wraps the bootstrap and login endpoints when set.
	AuthLimiter func(http.Handler) http.Handler
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
}

// profileUIDFromPath extracts the uid from /api/profiles/{uid}[/suffix].
func profileUIDFromPath(path string) (uid string, rest string) {
	trimmed := strings.TrimPrefix(path, "/api/profiles/")
	if trimmed == path {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// NewRouter builds the API route table. Middleware (request id, logging,
// CORS, auth, metrics, global rate limit) wraps the returned handler at the
// server level.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	limit := func(h http.HandlerFunc) http.Handler {
		if cfg.AuthLimiter == nil {
			return h
		}
		return cfg.AuthLimiter(h)
	}

	if cfg.Sessions != nil {
		bootstrap := limit(cfg.Sessions.Bootstrap)
		mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				bootstrap.ServeHTTP(w, r)
			case http.MethodGet:
				cfg.Sessions.Current(w, r)
			default:
				methodNotAllowed(w, r)
			}
		})
		login := limit(cfg.Sessions.Login)
		mux.HandleFunc("/api/session/login", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r)
				return
			}
			login.ServeHTTP(w, r)
		})
		mux.HandleFunc("/api/session/logout", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r)
				return
			}
			cfg.Sessions.Logout(w, r)
		})
		mux.HandleFunc("/api/session/refresh", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r)
				return
			}
			cfg.Sessions.Refresh(w, r)
		})
	}

	if cfg.Users != nil {
		mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, r)
				return
			}
			cfg.Users.ListUsers(w, r)
		})
		mux.HandleFunc("/api/set-leader", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r)
				return
			}
			cfg.Users.SetRole(w, r)
		})
	}

	if cfg.Events != nil {
		mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Events.ListEvents(w, r)
			case http.MethodPost:
				cfg.Events.CreateEvent(w, r)
			default:
				methodNotAllowed(w, r)
			}
		})
		mux.HandleFunc("/api/events/", func(w http.ResponseWriter, r *http.Request) {
			_, rest := eventIDFromPath(r.URL.Path)
			switch rest {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Events.GetEvent(w, r)
				case http.MethodPut:
					cfg.Events.UpdateEvent(w, r)
				case http.MethodDelete:
					cfg.Events.DeleteEvent(w, r)
				default:
					methodNotAllowed(w, r)
				}
			case "rsvp":
				switch r.Method {
				case http.MethodPost:
					cfg.Events.RSVP(w, r)
				case http.MethodDelete:
					cfg.Events.CancelRSVP(w, r)
				default:
					methodNotAllowed(w, r)
				}
			case "attendance":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, r)
					return
				}
				cfg.Events.ListAttendance(w, r)
			default:
				WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			}
		})
	}

	if cfg.Profiles != nil {
		mux.HandleFunc("/api/profiles/", func(w http.ResponseWriter, r *http.Request) {
			uid, rest := profileUIDFromPath(r.URL.Path)
			if uid == "" {
				WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "User ID is required")
				return
			}
			switch rest {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Profiles.Get(w, r, uid)
				case http.MethodPut:
					cfg.Profiles.Update(w, r, uid)
				default:
					methodNotAllowed(w, r)
				}
			case "avatar":
				switch r.Method {
				case http.MethodGet:
					cfg.Profiles.GetAvatar(w, r, uid)
				case http.MethodPut:
					cfg.Profiles.SetAvatar(w, r, uid)
				default:
					methodNotAllowed(w, r)
				}
			default:
				WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			}
		})
	}

	if cfg.Calendar != nil {
		mux.HandleFunc("/api/calendar/ws", cfg.Calendar.Subscribe)
	}

	if cfg.Health != nil {
		mux.HandleFunc("/health", cfg.Health.Health)
		mux.HandleFunc("/ready", cfg.Health.Ready)
	}

	if cfg.MetricsHandler != nil {
		mux.Handle("/metrics", cfg.MetricsHandler)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"connect-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}
