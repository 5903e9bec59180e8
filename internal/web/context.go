package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/importwizard/internal/logging"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

type sessionKey struct{}

// withSession resolves {id} to a live session and stores it in the request
// context together with the session ID used by logging.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := s.store.Get(id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		ctx := logging.ContextWithSessionID(r.Context(), sess.ID())
		ctx = context.WithValue(ctx, sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session stored by withSession.
func sessionFrom(r *http.Request) *wizard.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*wizard.Session)
	return sess
}
