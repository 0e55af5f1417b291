// internal/httpserver/server.go
//
// Read-only observer API for the shared world.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - World endpoints: GET /world (JSON), GET /world/ascii, GET /watch (websocket).
//   - Journal endpoints: mounted under /sessions.
//   - POST /world/reset for operators holding a valid token.
//
// Notes:
//   - Observers only ever take the store's read lock, and only while copying.
//   - When a secret is configured every route except / and /health requires
//     an HS256 bearer token; without one, reads are open and reset is off.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/feedbot/internal/journal"
	"github.com/robalobadob/feedbot/internal/store"
	"github.com/robalobadob/feedbot/internal/world"
)

// Options configures the observer API.
type Options struct {
	Secret        string        // HS256 secret; empty disables auth and reset
	ClientOrigin  string        // CORS origin, "*" for any
	WatchInterval time.Duration // websocket push period

	// NewWorld builds the grid used by POST /world/reset when the request
	// does not pin positions. Height and Width size pinned resets.
	NewWorld      func() (*world.Grid, error)
	Height, Width int
}

// Server bundles router, shared world and journal.
type Server struct {
	r       *chi.Mux
	store   store.Store
	journal journal.Journal
	opts    Options
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, j journal.Journal, opts Options) *Server {
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 250 * time.Millisecond
	}
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "*"
	}
	s := &Server{r: chi.NewRouter(), store: st, journal: j, opts: opts}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"service":"feedbot","endpoints":["/health","/world","/world/ascii","/watch","/sessions","POST /world/reset"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.r.Group(func(r chi.Router) {
		r.Use(s.withAuth())

		// The websocket outlives any request timeout.
		r.Get("/watch", s.handleWatch)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(10 * time.Second))
			r.Use(jsonContentType)
			r.Get("/world", s.handleWorld)
			r.Get("/world/ascii", s.handleASCII)
			r.Post("/world/reset", s.handleReset)
			s.mountSessions(r)
		})
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// writeError sends a JSON error body built from fields, so request data
// such as paths is escaped.
func writeError(w http.ResponseWriter, code int, fields map[string]string) {
	b, err := json.Marshal(fields)
	if err != nil {
		b = []byte(`{"error":"internal"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}

// cors allows the configured origin to read the API.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.opts.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ WORLD --------------------------------------

// worldView is the JSON shape of a snapshot.
type worldView struct {
	Height int               `json:"height"`
	Width  int               `json:"width"`
	State  world.SearchState `json:"state"`
	Robot  *world.Pos        `json:"robot"`
	Food   *world.Pos        `json:"food"`
	Cells  [][]world.Cell    `json:"cells"`
}

func viewOf(u world.Update) worldView {
	v := worldView{
		Height: u.Grid.Height(),
		Width:  u.Grid.Width(),
		State:  u.State,
		Cells:  u.Grid.Cells(),
	}
	if p, ok := u.Grid.Robot(); ok {
		v.Robot = &p
	}
	if p, ok := u.Grid.Food(); ok {
		v.Food = &p
	}
	return v
}

func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context())
	if err != nil {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(snap))
}

func (s *Server) handleASCII(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context())
	if err != nil {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(snap.State.String() + "\n" + snap.Grid.String()))
}

// resetReq optionally pins both positions.
type resetReq struct {
	Food  *world.Pos `json:"food"`
	Robot *world.Pos `json:"robot"`
}

// handleReset replaces the shared world. Requires a configured secret.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.opts.Secret == "" {
		http.Error(w, `{"error":"reset_disabled"}`, http.StatusForbidden)
		return
	}
	var req resetReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
			return
		}
	}

	var (
		g   *world.Grid
		err error
	)
	switch {
	case req.Food != nil && req.Robot != nil:
		g, err = world.NewAt(s.opts.Height, s.opts.Width, *req.Food, *req.Robot)
	case req.Food != nil || req.Robot != nil:
		http.Error(w, `{"error":"pin both food and robot"}`, http.StatusBadRequest)
		return
	case s.opts.NewWorld != nil:
		g, err = s.opts.NewWorld()
	default:
		err = errors.New("no world factory")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.Reset(r.Context(), g); err != nil {
		log.Error().Err(err).Msg("reset world")
		http.Error(w, `{"error":"reset_failed"}`, http.StatusInternalServerError)
		return
	}
	log.Info().Str("request", chimw.GetReqID(r.Context())).Str("subject", subject(r)).Msg("world reset")

	snap, err := s.store.Snapshot(r.Context())
	if err != nil {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(snap))
}
