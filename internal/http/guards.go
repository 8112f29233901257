package http

import (
	"net/http"

	"finease/internal/core"
	"finease/internal/guard"
	"finease/internal/log"
	"finease/internal/session"
)

// pendingRefreshSeconds is how soon the loading page polls again.
const pendingRefreshSeconds = "1"

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return s.guarded(next, func(st session.State, from string) guard.Decision {
		return guard.Authenticated(st, from)
	})
}

func (s *Server) requireRole(allowed ...core.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return s.guarded(next, func(st session.State, from string) guard.Decision {
			return guard.Role(st, from, allowed...)
		})
	}
}

// guarded runs decide against the current session before every request.
// Pending sessions get a neutral page that refreshes itself until the
// session settles.
func (s *Server) guarded(next http.Handler, decide func(session.State, string) guard.Decision) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := s.session.State()
		d := decide(st, returnLocation(r))

		switch d.Outcome {
		case guard.Allow:
			next.ServeHTTP(w, r)
		case guard.Pending:
			log.FromContext(r.Context()).DebugContext(r.Context(), "Session pending",
				log.FieldComponent, log.ComponentGuard, log.FieldAuthLoading, st.AuthLoading)
			w.Header().Set("Refresh", pendingRefreshSeconds)
			if isHTMX(r) {
				w.Header().Set("HX-Refresh", "true")
				w.WriteHeader(http.StatusAccepted)
				return
			}
			s.render(w, r, http.StatusOK, "pending.html", s.newPage(r, "Loading", nil))
		default:
			log.FromContext(r.Context()).InfoContext(r.Context(), "Guard redirect",
				log.FieldComponent, log.ComponentGuard,
				"outcome", d.Outcome.String(), log.FieldRedirect, d.Location)
			redirect(w, r, d.Location)
		}
	})
}

// returnLocation is where login sends the visitor back to. Only page loads
// are remembered; an action posted from a page returns to that page.
func returnLocation(r *http.Request) string {
	if r.Method == http.MethodGet && !isHTMX(r) {
		return r.URL.RequestURI()
	}
	if cur := r.Header.Get("HX-Current-URL"); cur != "" {
		return guard.SafeReturn(pathOf(cur))
	}
	return r.URL.Path
}
