// Package rolling compares signed counters that wrap around instead of
// saturating. internal/counter builds its Greater, Less and Equal on
// Compare.
package rolling

import "golang.org/x/exp/constraints"

const (
	Less    = -1
	Equal   = 0
	Greater = 1
)

func abs[T constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}

	return v
}

// Compare compares two values that may have rolled over their type's range.
// The most significant bit is treated as a wrap marker rather than a sign,
// so Compare(1, -1) reports Greater: -1 is one tick past the wrap point a
// freshly-incremented int32 counter would have hit, not a smaller number.
func Compare[T constraints.Signed](a, b T) int {
	var (
		absA = abs(a)
		absB = abs(b)
	)

	if absA > absB {
		if a < 0 {
			return Less
		}
		return Greater
	}

	if absA < absB {
		if a < 0 {
			return Greater
		}
		return Less
	}

	return Equal
}

// Max returns the more recent of two generation/failure counters, taking
// rollover into account the same way Compare does.
func Max[T constraints.Signed](a, b T) T {
	if Compare(a, b) == Greater {
		return a
	}

	return b
}
