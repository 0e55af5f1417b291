// internal/tcpserver/server.go
//
// TCP server for the robot protocol.
// Responsibilities:
//   - Accept connections and serve them one at a time, or up to MaxSessions
//     at once, all against the same shared world.
//   - Track the lifecycle: Listening → Connected → Serving, back to Listening
//     when sessions end, Closed once Serve returns (OneShot: after the first
//     session ends).
//   - Stop cleanly when the context is canceled: the listener and every
//     active connection are closed and Serve returns nil once they drain.
//
// The per-connection request/response loop lives in session.go.

package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/feedbot/internal/journal"
	"github.com/robalobadob/feedbot/internal/protocol"
	"github.com/robalobadob/feedbot/internal/store"
)

// SessionState is the server's position in the connection lifecycle.
type SessionState int32

const (
	Idle SessionState = iota
	Listening
	Connected
	Serving
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Serving:
		return "serving"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options tunes the transport. Zero timeouts disable the deadline.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrame     uint64 // zero means protocol.DefaultMaxFrame
	MaxSessions  int    // concurrent sessions; zero or one serves them in turn
	OneShot      bool   // stop after the first session closes
}

// Server owns the listener and drives up to MaxSessions sessions against the
// shared world.
type Server struct {
	store   store.Store
	journal journal.Journal
	opts    Options

	listening atomic.Bool
	closed    atomic.Bool
	connected atomic.Int32 // accepted, not yet serving
	serving   atomic.Int32

	mu sync.Mutex // guards ln
	ln net.Listener
}

// New constructs a Server. A nil journal is replaced by an in-memory one.
func New(st store.Store, j journal.Journal, opts Options) *Server {
	if j == nil {
		j = journal.NewMemory()
	}
	if opts.MaxFrame == 0 {
		opts.MaxFrame = protocol.DefaultMaxFrame
	}
	if opts.MaxSessions < 1 {
		opts.MaxSessions = 1
	}
	return &Server{store: st, journal: j, opts: opts}
}

// State reports the most advanced state any session is in, Listening when
// none is active, and Closed once Serve has returned.
func (s *Server) State() SessionState {
	switch {
	case s.closed.Load():
		return Closed
	case s.serving.Load() > 0:
		return Serving
	case s.connected.Load() > 0:
		return Connected
	case s.listening.Load():
		return Listening
	}
	return Idle
}

// Active reports the number of open sessions.
func (s *Server) Active() int { return int(s.connected.Load() + s.serving.Load()) }

// Addr returns the listener address once serving has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, the listener fails,
// or (with OneShot) the first session ends. It takes ownership of ln and
// returns only after every session it started has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	var closeOnce sync.Once
	closeLn := func() { closeOnce.Do(func() { _ = ln.Close() }) }
	stop := context.AfterFunc(ctx, closeLn)
	defer stop()

	var wg sync.WaitGroup
	defer func() {
		closeLn()
		s.listening.Store(false)
		wg.Wait()
		s.closed.Store(true)
	}()

	slots := make(chan struct{}, s.opts.MaxSessions)
	log.Info().Str("addr", ln.Addr().String()).Int("max_sessions", s.opts.MaxSessions).Msg("robot protocol listening")
	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		s.listening.Store(true)
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.connected.Add(1)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			s.serveConn(ctx, conn)
			if s.opts.OneShot {
				log.Info().Msg("one-shot session finished; no longer listening")
				closeLn()
			}
		}()
	}
}

// serveConn runs one session to completion and journals it.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	logger := log.With().Str("session", id).Str("remote", remote).Logger()
	logger.Info().Msg("session opened")

	if err := s.journal.OpenSession(ctx, journal.Session{ID: id, Remote: remote, StartedAt: time.Now().UTC()}); err != nil {
		logger.Warn().Err(err).Msg("journal open session")
	}

	sess := &session{
		id:      id,
		conn:    conn,
		store:   s.store,
		journal: s.journal,
		opts:    s.opts,
		log:     logger,
		serving: func() {
			s.connected.Add(-1)
			s.serving.Add(1)
		},
	}
	outcome := sess.run(ctx)
	s.serving.Add(-1)

	// The session context may already be canceled; the close record must still land.
	if err := s.journal.CloseSession(context.Background(), id, outcome, time.Now().UTC()); err != nil {
		logger.Warn().Err(err).Msg("journal close session")
	}
	logger.Info().Str("outcome", outcome).Int("commands", sess.seq).Msg("session closed")
}
