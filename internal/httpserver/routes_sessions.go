// internal/httpserver/routes_sessions.go
//
// Read-only journal routes:
//   - GET /sessions?limit=N       → most recent sessions first
//   - GET /sessions/{id}/moves    → moves of one session, in order

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/feedbot/internal/journal"
)

const maxSessionsLimit = 200

// mountSessions registers all /sessions routes.
func (s *Server) mountSessions(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleSessions)
		r.Get("/{id}/moves", s.handleMoves)
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			http.Error(w, `{"error":"bad_limit"}`, http.StatusBadRequest)
			return
		}
		limit = min(n, maxSessionsLimit)
	}
	sessions, err := s.journal.Sessions(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("list sessions")
		http.Error(w, `{"error":"journal_error"}`, http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []journal.Session{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"sessions": sessions})
}

func (s *Server) handleMoves(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	moves, err := s.journal.Moves(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session", id).Msg("list moves")
		http.Error(w, `{"error":"journal_error"}`, http.StatusInternalServerError)
		return
	}
	if moves == nil {
		moves = []journal.Move{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"session": id, "moves": moves})
}
