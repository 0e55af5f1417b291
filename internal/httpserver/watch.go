package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/feedbot/internal/world"
)

const watchWriteWait = 5 * time.Second

// handleWatch upgrades to a websocket and pushes the world as JSON every
// WatchInterval, skipping ticks where nothing changed. The first frame is
// always sent.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if s.opts.ClientOrigin == "*" {
				return true
			}
			o := r.Header.Get("Origin")
			return o == "" || o == s.opts.ClientOrigin
		},
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Debug().Err(err).Msg("watch upgrade")
		return
	}
	defer conn.Close()

	logger := log.With().Str("remote", r.RemoteAddr).Logger()
	logger.Info().Msg("watcher connected")
	defer logger.Info().Msg("watcher disconnected")

	// Reader: only needed to notice close frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.WatchInterval)
	defer ticker.Stop()

	var last world.Update
	sent := false
	for {
		snap, err := s.store.Snapshot(r.Context())
		if err != nil {
			return
		}
		if !sent || !snap.Equal(last) {
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(viewOf(snap)); err != nil {
				logger.Debug().Err(err).Msg("watch write")
				return
			}
			last, sent = snap, true
		}

		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
