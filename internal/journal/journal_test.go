package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalobadob/feedbot/internal/world"
)

func backends(t *testing.T) map[string]func(t *testing.T) Journal {
	return map[string]func(t *testing.T) Journal{
		"memory": func(t *testing.T) Journal { return NewMemory() },
		"sqlite": func(t *testing.T) Journal {
			j, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "journal.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { _ = j.Close() })
			return j
		},
	}
}

func TestJournalLifecycle(t *testing.T) {
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			j := open(t)

			for i, id := range []string{"s1", "s2"} {
				if err := j.OpenSession(ctx, Session{ID: id, Remote: "127.0.0.1:5000", StartedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
					t.Fatalf("OpenSession %s: %v", id, err)
				}
			}

			moves := []Move{
				{SessionID: "s1", Seq: 1, Direction: "right", Robot: world.Pos{Row: 0, Col: 1}, State: "searching", At: base},
				{SessionID: "s1", Seq: 2, Direction: "up", Robot: world.Pos{Row: 0, Col: 1}, State: "searching", Err: "out of bounds", At: base},
				{SessionID: "s1", Seq: 3, Direction: "down", Robot: world.Pos{Row: 1, Col: 1}, State: "found_food", At: base},
			}
			for _, m := range moves {
				if err := j.RecordMove(ctx, m); err != nil {
					t.Fatalf("RecordMove %d: %v", m.Seq, err)
				}
			}
			if err := j.RecordMove(ctx, Move{SessionID: "nope", Seq: 1, At: base}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("RecordMove unknown session: err = %v", err)
			}
			if err := j.CloseSession(ctx, "s1", OutcomeDisconnected, base.Add(time.Minute)); err != nil {
				t.Fatalf("CloseSession: %v", err)
			}
			if err := j.CloseSession(ctx, "nope", OutcomeDisconnected, base); !errors.Is(err, ErrNotFound) {
				t.Fatalf("CloseSession unknown: err = %v", err)
			}

			sessions, err := j.Sessions(ctx, 10)
			if err != nil {
				t.Fatalf("Sessions: %v", err)
			}
			if len(sessions) != 2 || sessions[0].ID != "s2" || sessions[1].ID != "s1" {
				t.Fatalf("sessions order = %+v", sessions)
			}
			s1 := sessions[1]
			if s1.Moves != 2 {
				t.Fatalf("s1 moves = %d, want 2 applied", s1.Moves)
			}
			if s1.Outcome != OutcomeDisconnected || s1.EndedAt == nil || !s1.EndedAt.Equal(base.Add(time.Minute)) {
				t.Fatalf("s1 close not recorded: %+v", s1)
			}
			if sessions[0].Outcome != OutcomeActive || sessions[0].EndedAt != nil {
				t.Fatalf("s2 should be active: %+v", sessions[0])
			}

			limited, err := j.Sessions(ctx, 1)
			if err != nil || len(limited) != 1 || limited[0].ID != "s2" {
				t.Fatalf("Sessions(1) = %+v, %v", limited, err)
			}

			got, err := j.Moves(ctx, "s1")
			if err != nil {
				t.Fatalf("Moves: %v", err)
			}
			if len(got) != len(moves) {
				t.Fatalf("got %d moves, want %d", len(got), len(moves))
			}
			for i := range moves {
				if got[i].Seq != moves[i].Seq || got[i].Direction != moves[i].Direction ||
					got[i].Robot != moves[i].Robot || got[i].Err != moves[i].Err || !got[i].At.Equal(moves[i].At) {
					t.Fatalf("move %d = %+v, want %+v", i, got[i], moves[i])
				}
			}
			if empty, err := j.Moves(ctx, "s2"); err != nil || len(empty) != 0 {
				t.Fatalf("Moves(s2) = %v, %v", empty, err)
			}
			if _, err := j.Moves(ctx, "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Moves unknown: err = %v", err)
			}
		})
	}
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	ctx := context.Background()
	if err := j.OpenSession(ctx, Session{ID: "keep", Remote: "x", StartedAt: time.Now()}); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	_ = j.Close()

	j, err = OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer j.Close()
	sessions, err := j.Sessions(ctx, 0)
	if err != nil || len(sessions) != 1 || sessions[0].ID != "keep" {
		t.Fatalf("Sessions after reopen = %+v, %v", sessions, err)
	}
}
