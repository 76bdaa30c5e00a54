// Package tracking holds the pure milestone and drawdown rules applied to a
// call on every successful poll.
package tracking

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HighLadderFloor separates the low ladder (< 10x) from the high ladder (>= 10x).
const HighLadderFloor = 10.0

// Ladder validation errors.
var (
	ErrEmptyLadder     = errors.New("ladder is empty")
	ErrNotAscending    = errors.New("ladder thresholds must be strictly ascending")
	ErrThresholdTooLow = errors.New("ladder thresholds must be greater than 1")
	ErrOutOfRange      = errors.New("ladder threshold out of range")
)

// Ladder is an ascending sequence of multiple thresholds that trigger milestone alerts.
type Ladder []float64

// Default ladders.
var (
	DefaultLowLadder  = Ladder{2, 3, 4, 5, 6, 8}
	DefaultHighLadder = Ladder{10, 15, 20, 30, 50, 100}
)

// ParseLadder parses a comma-separated list such as "2,4,6,8".
// An empty string yields an empty ladder.
func ParseLadder(s string) (Ladder, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	l := make(Ladder, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse ladder threshold %q: %w", p, err)
		}
		l = append(l, v)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks that thresholds are strictly ascending and greater than 1.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return ErrEmptyLadder
	}
	for i, t := range l {
		if t <= 1 {
			return fmt.Errorf("%w: %g", ErrThresholdTooLow, t)
		}
		if i > 0 && t <= l[i-1] {
			return fmt.Errorf("%w: %g after %g", ErrNotAscending, t, l[i-1])
		}
	}
	return nil
}

// ValidateLow checks the ladder is valid and every threshold is below HighLadderFloor.
func (l Ladder) ValidateLow() error {
	if err := l.Validate(); err != nil {
		return err
	}
	if last := l[len(l)-1]; last >= HighLadderFloor {
		return fmt.Errorf("%w: low ladder threshold %g must be < %g", ErrOutOfRange, last, HighLadderFloor)
	}
	return nil
}

// ValidateHigh checks the ladder is valid and every threshold is at least HighLadderFloor.
func (l Ladder) ValidateHigh() error {
	if err := l.Validate(); err != nil {
		return err
	}
	if first := l[0]; first < HighLadderFloor {
		return fmt.Errorf("%w: high ladder threshold %g must be >= %g", ErrOutOfRange, first, HighLadderFloor)
	}
	return nil
}

// Merge combines ladders into one ascending sequence without duplicates.
func Merge(ladders ...Ladder) Ladder {
	seen := make(map[float64]struct{})
	var out Ladder
	for _, l := range ladders {
		for _, t := range l {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Float64s(out)
	return out
}

// Contains reports whether t is a threshold of the ladder.
func (l Ladder) Contains(t float64) bool {
	for _, v := range l {
		if v == t {
			return true
		}
	}
	return false
}

// String formats the ladder as ParseLadder accepts it.
func (l Ladder) String() string {
	parts := make([]string, len(l))
	for i, t := range l {
		parts[i] = strconv.FormatFloat(t, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
