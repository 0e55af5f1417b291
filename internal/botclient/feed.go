package botclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/robalobadob/feedbot/internal/world"
)

// Step describes one command sent by Feed.
type Step struct {
	Seq   int
	Dir   world.Direction
	Robot world.Pos
	State world.SearchState
}

// Result is the outcome of a Feed run.
type Result struct {
	Steps int
	Final world.Update
}

// ErrGaveUp is returned when Feed runs out of steps before finding food.
var ErrGaveUp = errors.New("step budget exhausted")

// Mover is the part of Client that Feed needs.
type Mover interface {
	Move(dir world.Direction) (world.Update, error)
}

// Feed walks the robot to the food. The first command is a probe to learn
// the world; rejected probes at the edge are retried in another direction.
// After that each step closes the row gap first, then the column gap.
// onStep may be nil.
func Feed(ctx context.Context, m Mover, maxSteps int, onStep func(Step)) (Result, error) {
	var (
		res Result
		cur world.Update
		ok  bool
	)
	send := func(dir world.Direction) (world.Update, error) {
		u, err := m.Move(dir)
		if err != nil {
			return u, err
		}
		res.Steps++
		res.Final = u
		if onStep != nil {
			robot, _ := u.Grid.Robot()
			onStep(Step{Seq: res.Steps, Dir: dir, Robot: robot, State: u.State})
		}
		return u, nil
	}

	for _, dir := range []world.Direction{world.Right, world.Left, world.Down, world.Up} {
		u, err := send(dir)
		if errors.Is(err, ErrRejected) {
			continue
		}
		if err != nil {
			return res, err
		}
		cur, ok = u, true
		break
	}
	if !ok {
		return res, fmt.Errorf("probe: every direction %w", ErrRejected)
	}

	for cur.State == world.Searching {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if maxSteps > 0 && res.Steps >= maxSteps {
			return res, ErrGaveUp
		}
		robot, _ := cur.Grid.Robot()
		food, hasFood := cur.Grid.Food()
		if !hasFood {
			break
		}
		u, err := send(toward(robot, food))
		if err != nil {
			return res, err
		}
		cur = u
	}
	return res, nil
}

// toward picks a direction that brings from one cell closer to to.
func toward(from, to world.Pos) world.Direction {
	switch {
	case to.Row < from.Row:
		return world.Up
	case to.Row > from.Row:
		return world.Down
	case to.Col < from.Col:
		return world.Left
	default:
		return world.Right
	}
}
