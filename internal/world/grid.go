// internal/world/grid.go
//
// Grid model for a single food-searching robot.
// Responsibilities:
//   - Create worlds at random or at fixed positions.
//   - Move the robot one cell at a time with explicit bounds checks.
//   - Derive the search state by scanning for food.
//   - Produce deep-copied snapshots for the wire and for observers.
//
// Notes:
//   - A Grid is not safe for concurrent use; internal/store owns the locking.
//   - Robot and food lookups are full scans. At 100x100 that is cheap and it
//     keeps the cells as the only source of truth.
package world

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	DefaultHeight = 100
	DefaultWidth  = 100
)

// Grid is a fixed-size board indexed [row][col].
type Grid struct {
	cells [][]Cell
}

// empty allocates an h×w grid filled with Empty.
func empty(h, w int) (*Grid, error) {
	if h <= 0 || w <= 0 || h*w < 2 {
		return nil, fmt.Errorf("%dx%d: %w", h, w, ErrInvalidSize)
	}
	cells := make([][]Cell, h)
	for r := range cells {
		row := make([]Cell, w)
		for c := range row {
			row[c] = Empty
		}
		cells[r] = row
	}
	return &Grid{cells: cells}, nil
}

// NewRandom builds an h×w world with food and robot on two distinct,
// uniformly chosen cells.
func NewRandom(rng *rand.Rand, h, w int) (*Grid, error) {
	g, err := empty(h, w)
	if err != nil {
		return nil, err
	}
	n := h * w
	food := rng.IntN(n)
	robot := rng.IntN(n - 1)
	if robot >= food {
		robot++
	}
	g.cells[food/w][food%w] = Food
	g.cells[robot/w][robot%w] = Robot
	return g, nil
}

// NewAt builds an h×w world with food and robot at the given positions.
func NewAt(h, w int, food, robot Pos) (*Grid, error) {
	g, err := empty(h, w)
	if err != nil {
		return nil, err
	}
	if !g.inBounds(food) {
		return nil, fmt.Errorf("food at %v: %w", food, ErrOutOfBounds)
	}
	if !g.inBounds(robot) {
		return nil, fmt.Errorf("robot at %v: %w", robot, ErrOutOfBounds)
	}
	if food == robot {
		return nil, fmt.Errorf("%v: %w", food, ErrPlacementConflict)
	}
	g.cells[food.Row][food.Col] = Food
	g.cells[robot.Row][robot.Col] = Robot
	return g, nil
}

// FromCells rebuilds a grid from decoded rows. The rows are copied and
// checked for a rectangular shape, exactly one robot and at most one food.
func FromCells(rows [][]Cell) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty rows: %w", ErrInvalidGrid)
	}
	w := len(rows[0])
	robots, foods := 0, 0
	cells := make([][]Cell, len(rows))
	for r, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("row %d has %d cells, want %d: %w", r, len(row), w, ErrInvalidGrid)
		}
		for _, c := range row {
			switch c {
			case Robot:
				robots++
			case Food:
				foods++
			case Empty:
			default:
				return nil, fmt.Errorf("row %d: %v: %w", r, c, ErrInvalidGrid)
			}
		}
		cells[r] = append([]Cell(nil), row...)
	}
	if robots != 1 {
		return nil, fmt.Errorf("%d robots: %w", robots, ErrInvalidGrid)
	}
	if foods > 1 {
		return nil, fmt.Errorf("%d food cells: %w", foods, ErrInvalidGrid)
	}
	return &Grid{cells: cells}, nil
}

func (g *Grid) Height() int { return len(g.cells) }

func (g *Grid) Width() int {
	if len(g.cells) == 0 {
		return 0
	}
	return len(g.cells[0])
}

// At returns the cell at p, or Empty when p is off the board.
func (g *Grid) At(p Pos) Cell {
	if !g.inBounds(p) {
		return Empty
	}
	return g.cells[p.Row][p.Col]
}

// MoveRobot moves the robot one cell in dir.
//
// The grid is left untouched on every error path:
//   - ErrUnknownDirection if dir is not one of the four movements.
//   - ErrRobotNotFound if the board has no robot (invariant violation).
//   - ErrOutOfBounds if the step would leave [0,H)×[0,W).
//
// Stepping onto food overwrites it, which flips SearchState to FoundFood.
func (g *Grid) MoveRobot(dir Direction) error {
	from, ok := g.Robot()
	if !ok {
		return ErrRobotNotFound
	}
	to, ok := from.step(dir)
	if !ok {
		return fmt.Errorf("move %v: %w", dir, ErrUnknownDirection)
	}
	if !g.inBounds(to) {
		return fmt.Errorf("move %v from %v: %w", dir, from, ErrOutOfBounds)
	}
	g.cells[to.Row][to.Col] = Robot
	g.cells[from.Row][from.Col] = Empty
	return nil
}

// SearchState scans the whole board: Searching while any food remains.
func (g *Grid) SearchState() SearchState {
	if _, ok := g.Food(); ok {
		return Searching
	}
	return FoundFood
}

// Robot returns the robot position.
func (g *Grid) Robot() (Pos, bool) { return g.find(Robot) }

// Food returns the food position, if any food is left.
func (g *Grid) Food() (Pos, bool) { return g.find(Food) }

func (g *Grid) find(want Cell) (Pos, bool) {
	for r, row := range g.cells {
		for c, cell := range row {
			if cell == want {
				return Pos{Row: r, Col: c}, true
			}
		}
	}
	return Pos{}, false
}

func (g *Grid) inBounds(p Pos) bool {
	return p.Row >= 0 && p.Row < g.Height() && p.Col >= 0 && p.Col < g.Width()
}

// Cells returns a deep copy of the rows.
func (g *Grid) Cells() [][]Cell {
	out := make([][]Cell, len(g.cells))
	for r, row := range g.cells {
		out[r] = append([]Cell(nil), row...)
	}
	return out
}

// Clone returns an independent copy of g.
func (g *Grid) Clone() *Grid { return &Grid{cells: g.Cells()} }

// Snapshot copies the grid and derives its search state.
func (g *Grid) Snapshot() Update {
	return Update{Grid: g.Clone(), State: g.SearchState()}
}

// Equal reports whether both grids have the same shape and cells.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.Height() != o.Height() || g.Width() != o.Width() {
		return false
	}
	for r, row := range g.cells {
		for c, cell := range row {
			if o.cells[r][c] != cell {
				return false
			}
		}
	}
	return true
}

// String renders the board one row per line: R robot, F food, . empty.
func (g *Grid) String() string {
	var b strings.Builder
	b.Grow(g.Height() * (g.Width() + 1))
	for _, row := range g.cells {
		for _, cell := range row {
			switch cell {
			case Robot:
				b.WriteByte('R')
			case Food:
				b.WriteByte('F')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
