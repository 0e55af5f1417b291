// internal/store/memory.go
//
// In-memory implementation of the shared world handle.
// One world lives for the whole process; this package is the only place
// that touches it concurrently.
//
// Characteristics:
//   - Single writer / many readers via RWMutex.
//   - Move holds the write lock only across the grid mutation and the snapshot
//     copy; callers do network I/O after the lock is released.
//   - Snapshot holds the read lock only while copying, so observers never
//     stall the session loop for long.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/robalobadob/feedbot/internal/world"
)

// Store defines access to the shared world.
type Store interface {
	// Move applies one robot movement and returns the world as it stands
	// immediately after that movement. On error the world is unchanged.
	Move(ctx context.Context, dir world.Direction) (world.Update, error)

	// Snapshot returns a private copy of the current world.
	Snapshot(ctx context.Context) (world.Update, error)

	// Reset replaces the world.
	Reset(ctx context.Context, g *world.Grid) error
}

// memory guards a single grid.
type memory struct {
	mu   sync.RWMutex // guards grid
	grid *world.Grid
}

// NewMemoryStore wraps g. The store takes ownership; callers must not keep
// using g afterwards.
func NewMemoryStore(g *world.Grid) Store {
	return &memory{grid: g}
}

func (m *memory) Move(ctx context.Context, dir world.Direction) (world.Update, error) {
	if err := ctx.Err(); err != nil {
		return world.Update{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.grid.MoveRobot(dir); err != nil {
		return world.Update{}, err
	}
	return m.grid.Snapshot(), nil
}

func (m *memory) Snapshot(ctx context.Context) (world.Update, error) {
	if err := ctx.Err(); err != nil {
		return world.Update{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grid.Snapshot(), nil
}

func (m *memory) Reset(ctx context.Context, g *world.Grid) error {
	if g == nil {
		return errors.New("reset: nil grid")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grid = g.Clone()
	return nil
}
