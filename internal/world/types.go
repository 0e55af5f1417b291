// internal/world/types.go
//
// Core type definitions for the food-search world.
// Defines:
//   - Cell: contents of one grid square (robot/food/empty).
//   - Direction: a one-step robot movement.
//   - SearchState: derived flag telling whether food is still on the board.
//   - Pos: a signed [row, col] coordinate.
//   - Update: a full world snapshot plus its derived search state.
//
// The numeric values of Cell, Direction and SearchState are wire discriminants
// and must not be reordered.

package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Cell is the content of a single grid square.
type Cell uint32

const (
	Robot Cell = iota
	Food
	Empty
)

func (c Cell) String() string {
	switch c {
	case Robot:
		return "robot"
	case Food:
		return "food"
	case Empty:
		return "empty"
	}
	return fmt.Sprintf("cell(%d)", uint32(c))
}

// Valid reports whether c is one of the known variants.
func (c Cell) Valid() bool { return c <= Empty }

// MarshalJSON renders the cell by name for observers.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("marshal %v: %w", c, ErrInvalidGrid)
	}
	return json.Marshal(c.String())
}

// Direction is a single-step movement command.
type Direction uint32

const (
	Up Direction = iota
	Left
	Right
	Down
)

// Directions lists every movement in wire order.
var Directions = []Direction{Up, Left, Right, Down}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Left:
		return "left"
	case Right:
		return "right"
	case Down:
		return "down"
	}
	return fmt.Sprintf("direction(%d)", uint32(d))
}

// Valid reports whether d is one of the four movements.
func (d Direction) Valid() bool { return d <= Down }

// offset returns the unit [row, col] delta for d.
func (d Direction) offset() (int, int, bool) {
	switch d {
	case Up:
		return -1, 0, true
	case Down:
		return 1, 0, true
	case Left:
		return 0, -1, true
	case Right:
		return 0, 1, true
	}
	return 0, 0, false
}

// ParseDirection accepts "up", "down", "left" or "right" (any case).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "down":
		return Down, nil
	}
	return 0, fmt.Errorf("parse %q: %w", s, ErrUnknownDirection)
}

// SearchState tells whether the robot has eaten the food yet.
// It is always derived from a Grid, never stored alongside it.
type SearchState uint32

const (
	FoundFood SearchState = iota
	Searching
)

func (s SearchState) String() string {
	switch s {
	case FoundFood:
		return "found_food"
	case Searching:
		return "searching"
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// Valid reports whether s is a known state.
func (s SearchState) Valid() bool { return s <= Searching }

// MarshalJSON renders the state by name for observers.
func (s SearchState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Pos is a grid coordinate. Signed so that stepping off row or column zero
// yields -1 instead of wrapping.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.Row, p.Col) }

// step returns the neighbour of p in direction d.
func (p Pos) step(d Direction) (Pos, bool) {
	dr, dc, ok := d.offset()
	if !ok {
		return p, false
	}
	return Pos{Row: p.Row + dr, Col: p.Col + dc}, true
}

// Update is a world snapshot sent to clients after each command.
// Grid is a private copy; mutating it never affects the shared world.
type Update struct {
	Grid  *Grid
	State SearchState
}

// Equal compares two updates cell by cell.
func (u Update) Equal(o Update) bool {
	return u.State == o.State && u.Grid.Equal(o.Grid)
}

var (
	ErrOutOfBounds       = errors.New("out of bounds")
	ErrRobotNotFound     = errors.New("robot was not found")
	ErrUnknownDirection  = errors.New("unknown direction")
	ErrInvalidSize       = errors.New("invalid grid size")
	ErrInvalidGrid       = errors.New("invalid grid")
	ErrPlacementConflict = errors.New("food and robot share a cell")
)
