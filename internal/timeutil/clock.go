package timeutil

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinutesPerDay is 24 hours in minutes.
	MinutesPerDay = 1440

	// MinBlockMinutes is the smallest block the planner will emit.
	MinBlockMinutes = 5
	// MaxBlockMinutes caps auto-generated blocks at 6 hours. Manual and
	// calendar-originated tasks are exempt.
	MaxBlockMinutes = 360

	// EndOfDay is the clock label used for the first half of a
	// cross-midnight split.
	EndOfDay = "23:59"
)

// ToMinutes parses a 24-hour HH:MM string into minutes since midnight.
func ToMinutes(clock string) (int, error) {
	s := strings.TrimSpace(clock)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return h*60 + m, nil
}

// ToClock renders minutes since midnight as HH:MM. Values are taken mod
// one day so 1440 prints as 00:00.
func ToClock(minutes int) string {
	minutes %= MinutesPerDay
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Duration returns the length in minutes of the clock range [start, end).
// end <= start means the range wraps past midnight.
func Duration(start, end int) int {
	if end <= start {
		return MinutesPerDay - start + end
	}
	return end - start
}

// ClockDuration is Duration over HH:MM strings.
func ClockDuration(start, end string) (int, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return 0, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return 0, err
	}
	return Duration(s, e), nil
}

// Overlaps reports whether the half-open ranges [startA, endA) and
// [startB, endB) intersect. A block ending exactly when another starts
// does not overlap.
func Overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && endA > startB
}

// Snap rounds minutes to the nearest multiple of interval (15/30/60).
// A non-positive interval returns minutes unchanged.
func Snap(minutes, interval int) int {
	if interval <= 0 {
		return minutes
	}
	down := (minutes / interval) * interval
	if minutes-down < down+interval-minutes {
		return down
	}
	return down + interval
}

// DurationOutOfRangeError reports a block duration outside the policy
// bounds. Callers auto-generating blocks may clamp instead of failing.
type DurationOutOfRangeError struct {
	Minutes int
	Min     int
	Max     int // 0 means unbounded
}

func (e *DurationOutOfRangeError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("duration %dm outside allowed range [%dm, %dm]", e.Minutes, e.Min, e.Max)
	}
	return fmt.Sprintf("duration %dm below minimum %dm", e.Minutes, e.Min)
}

// ValidateDuration checks minutes against the block policy. exempt lifts
// the upper bound (manual or calendar-originated tasks).
func ValidateDuration(minutes int, exempt bool) error {
	if minutes < MinBlockMinutes {
		return &DurationOutOfRangeError{Minutes: minutes, Min: MinBlockMinutes, Max: maxFor(exempt)}
	}
	if !exempt && minutes > MaxBlockMinutes {
		return &DurationOutOfRangeError{Minutes: minutes, Min: MinBlockMinutes, Max: MaxBlockMinutes}
	}
	return nil
}

// ClampDuration forces minutes into the policy bounds instead of failing.
// Used when auto-generating blocks.
func ClampDuration(minutes int, exempt bool) int {
	if minutes < MinBlockMinutes {
		return MinBlockMinutes
	}
	if !exempt && minutes > MaxBlockMinutes {
		return MaxBlockMinutes
	}
	return minutes
}

func maxFor(exempt bool) int {
	if exempt {
		return 0
	}
	return MaxBlockMinutes
}
