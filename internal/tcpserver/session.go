// internal/tcpserver/session.go
//
// Request/response loop for a single robot connection.
// Responsibilities:
//   - Read one framed command at a time, apply it to the shared world and
//     write exactly one reply before reading the next.
//   - Map move errors onto replies and session outcomes.
//   - Journal every applied or rejected move.

package tcpserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/feedbot/internal/journal"
	"github.com/robalobadob/feedbot/internal/protocol"
	"github.com/robalobadob/feedbot/internal/store"
	"github.com/robalobadob/feedbot/internal/world"
)

// session is the request/response loop for one connection.
//
// Each iteration reads one command frame, applies it to the shared world and
// writes one reply frame before reading the next command. The store's write
// lock is held only inside store.Move; encoding and socket writes happen
// after it is released.
//
// Error policy:
//   - world.ErrOutOfBounds, world.ErrUnknownDirection: reply with an Error
//     message, keep serving.
//   - any other move error (world.ErrRobotNotFound): try to send an Error
//     reply, then close; the world is broken and further moves are pointless.
//   - transport and decode errors: close without a reply.
type session struct {
	id      string
	conn    net.Conn
	store   store.Store
	journal journal.Journal
	opts    Options
	log     zerolog.Logger
	serving func()

	seq int
}

// run serves until the connection ends and returns the journal outcome.
func (s *session) run(ctx context.Context) string {
	s.serving()
	for {
		payload, err := s.read()
		if err != nil {
			return s.transportOutcome(ctx, err)
		}
		dir, err := protocol.DecodeCommand(payload)
		if err != nil {
			s.log.Warn().Err(err).Msg("decode command")
			return journal.OutcomeDecode
		}
		s.seq++

		update, moveErr := s.store.Move(ctx, dir)
		switch {
		case moveErr == nil:
			s.record(ctx, dir, update, "")
			if err := s.reply(protocol.Reply{Update: &update}); err != nil {
				return s.transportOutcome(ctx, err)
			}
			s.log.Debug().Int("seq", s.seq).Stringer("dir", dir).Stringer("state", update.State).Msg("move applied")

		case errors.Is(moveErr, world.ErrOutOfBounds), errors.Is(moveErr, world.ErrUnknownDirection):
			s.log.Info().Int("seq", s.seq).Stringer("dir", dir).Err(moveErr).Msg("move rejected")
			if snap, err := s.store.Snapshot(ctx); err == nil {
				s.record(ctx, dir, snap, moveErr.Error())
			}
			if err := s.reply(protocol.Reply{Err: moveErr.Error()}); err != nil {
				return s.transportOutcome(ctx, err)
			}

		case ctx.Err() != nil:
			return journal.OutcomeShutdown

		default:
			s.log.Error().Int("seq", s.seq).Stringer("dir", dir).Err(moveErr).Msg("world invariant violated")
			if err := s.reply(protocol.Reply{Err: moveErr.Error()}); err != nil {
				s.log.Warn().Err(err).Msg("write error reply")
			}
			return journal.OutcomeInvariant
		}
	}
}

func (s *session) read() ([]byte, error) {
	if s.opts.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			return nil, err
		}
	}
	return protocol.ReadFrame(s.conn, s.opts.MaxFrame)
}

func (s *session) reply(r protocol.Reply) error {
	b, err := protocol.EncodeReply(r)
	if err != nil {
		return err
	}
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return protocol.WriteFrame(s.conn, b)
}

// record journals a move; failures are logged and never end the session.
func (s *session) record(ctx context.Context, dir world.Direction, u world.Update, moveErr string) {
	robot, _ := u.Grid.Robot()
	err := s.journal.RecordMove(ctx, journal.Move{
		SessionID: s.id,
		Seq:       s.seq,
		Direction: dir.String(),
		Robot:     robot,
		State:     u.State.String(),
		Err:       moveErr,
		At:        time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Int("seq", s.seq).Msg("journal move")
	}
}

func (s *session) transportOutcome(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return journal.OutcomeShutdown
	case errors.Is(err, protocol.ErrConnectionClosed):
		return journal.OutcomeDisconnected
	case errors.Is(err, protocol.ErrFrameTooLarge):
		s.log.Warn().Err(err).Msg("oversized frame")
		return journal.OutcomeDecode
	}
	s.log.Warn().Err(err).Msg("transport error")
	return journal.OutcomeTransport
}
