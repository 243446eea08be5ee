// Package order plans position moves for the dense 1..N item sequence
// kept per roadmap. It decides where an item goes; the store executes
// the swap transactionally.
package order

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is which way an item moves within its roadmap.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

var (
	// ErrAlreadyFirst and ErrAlreadyLast are expected boundary outcomes,
	// not failures.
	ErrAlreadyFirst = errors.New("item is already first")
	ErrAlreadyLast  = errors.New("item is already last")

	// ErrOutOfSequence means the roadmap's positions are not the dense
	// 1..N sequence the engine requires. It should never happen while
	// every mutation goes through the store's transactions.
	ErrOutOfSequence = errors.New("item positions out of sequence")

	ErrBadDirection = errors.New("direction must be up or down")
)

// ParseDirection normalizes a wire-level direction string.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return "", ErrBadDirection
}

// Bounds describes the occupied positions of one roadmap's items.
type Bounds struct {
	Min   int
	Max   int
	Count int
}

// Dense reports whether the bounds describe an unbroken 1..N sequence.
// Duplicates and gaps both break the count/extent relation.
func (b Bounds) Dense() bool {
	if b.Count == 0 {
		return false
	}
	return b.Min == 1 && b.Max-b.Min+1 == b.Count
}

// Plan computes the target position for moving an item at current in the
// given direction. A single-item roadmap is both first and last.
func Plan(current int, dir Direction, b Bounds) (int, error) {
	if !b.Dense() {
		return 0, fmt.Errorf("%w: min=%d max=%d count=%d", ErrOutOfSequence, b.Min, b.Max, b.Count)
	}
	if current < b.Min || current > b.Max {
		return 0, fmt.Errorf("%w: position %d outside [%d,%d]", ErrOutOfSequence, current, b.Min, b.Max)
	}
	switch dir {
	case Up:
		if current <= b.Min {
			return 0, ErrAlreadyFirst
		}
		return current - 1, nil
	case Down:
		if current >= b.Max {
			return 0, ErrAlreadyLast
		}
		return current + 1, nil
	}
	return 0, ErrBadDirection
}
