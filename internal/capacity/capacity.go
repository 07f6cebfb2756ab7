// Package capacity computes how many minutes of work a calendar day can
// absorb under a day policy: workday window minus lunch on weekdays, the
// weekend window on weekends, always bounded by an explicit per-day cap so
// a single day is never overloaded even when many tasks are due.
package capacity

import (
	"fmt"

	"timeplan/internal/plan"
	"timeplan/internal/timeutil"
)

// Policy is the per-scheduling-run day configuration. Hours are 0-23 local
// clock hours; caps are minutes.
type Policy struct {
	WorkdayStartHour int
	WorkdayEndHour   int
	LunchStartHour   int
	LunchEndHour     int

	AllowWeekends    bool
	WeekendStartHour int
	WeekendEndHour   int

	WeekdayMaxMinutes int
	WeekendMaxMinutes int
}

// InvalidPolicyError reports a policy that cannot be packed against.
// Validation runs before any packing work begins.
type InvalidPolicyError struct {
	Reason string
}

func (e *InvalidPolicyError) Error() string {
	return "invalid day policy: " + e.Reason
}

// Validate checks the structural invariants: a non-empty workday window,
// lunch fully inside the workday, positive weekday cap, and a sane weekend
// window when weekends are allowed.
func (p Policy) Validate() error {
	if p.WorkdayStartHour < 0 || p.WorkdayEndHour > 24 || p.WorkdayStartHour >= p.WorkdayEndHour {
		return &InvalidPolicyError{Reason: fmt.Sprintf("workday window %d-%d is empty", p.WorkdayStartHour, p.WorkdayEndHour)}
	}
	if p.LunchStartHour > p.LunchEndHour {
		return &InvalidPolicyError{Reason: fmt.Sprintf("lunch window %d-%d is inverted", p.LunchStartHour, p.LunchEndHour)}
	}
	if p.LunchStartHour < p.LunchEndHour {
		if p.LunchStartHour < p.WorkdayStartHour || p.LunchEndHour > p.WorkdayEndHour {
			return &InvalidPolicyError{Reason: fmt.Sprintf("lunch window %d-%d outside workday %d-%d",
				p.LunchStartHour, p.LunchEndHour, p.WorkdayStartHour, p.WorkdayEndHour)}
		}
	}
	if p.WeekdayMaxMinutes <= 0 {
		return &InvalidPolicyError{Reason: "weekday max minutes must be positive"}
	}
	if p.AllowWeekends {
		if p.WeekendStartHour < 0 || p.WeekendEndHour > 24 || p.WeekendStartHour >= p.WeekendEndHour {
			return &InvalidPolicyError{Reason: fmt.Sprintf("weekend window %d-%d is empty", p.WeekendStartHour, p.WeekendEndHour)}
		}
		if p.WeekendMaxMinutes <= 0 {
			return &InvalidPolicyError{Reason: "weekend max minutes must be positive when weekends are allowed"}
		}
	}
	return nil
}

// Window returns the packable clock window for a date in minutes since
// midnight: work start/end plus the lunch gap. Lunch applies to weekdays
// only; the weekend window carries no lunch break.
func (p Policy) Window(date plan.Date) (start, end, lunchStart, lunchEnd int) {
	if date.IsWeekend() {
		return p.WeekendStartHour * 60, p.WeekendEndHour * 60, 0, 0
	}
	return p.WorkdayStartHour * 60, p.WorkdayEndHour * 60, p.LunchStartHour * 60, p.LunchEndHour * 60
}

// Eligible reports whether the date may receive blocks at all.
func (p Policy) Eligible(date plan.Date) bool {
	return !date.IsWeekend() || p.AllowWeekends
}

// Cap returns the explicit per-day minute cap for a date.
func (p Policy) Cap(date plan.Date) int {
	if date.IsWeekend() {
		return p.WeekendMaxMinutes
	}
	return p.WeekdayMaxMinutes
}

// DayCapacity returns the raw window capacity of a full day: workday minus
// lunch on weekdays, the weekend window on weekends, zero for skipped
// weekends.
func (p Policy) DayCapacity(date plan.Date) int {
	if !p.Eligible(date) {
		return 0
	}
	start, end, lunchStart, lunchEnd := p.Window(date)
	return (end - start) - (lunchEnd - lunchStart)
}

// EffectiveCapacity is the capacity used in packing: the raw window bounded
// by the explicit cap. The cap always wins.
func (p Policy) EffectiveCapacity(date plan.Date) int {
	raw := p.DayCapacity(date)
	if cap := p.Cap(date); cap < raw {
		return cap
	}
	return raw
}

// RemainingToday returns how many packable minutes are left on date given
// the current clock time (minutes since midnight). Four disjoint states:
// before the workday the whole day remains, after it nothing does, during
// lunch only the post-lunch stretch remains, otherwise the time until
// lunch plus the post-lunch stretch (or the straight remainder once lunch
// has passed). The result is bounded by the day cap.
func (p Policy) RemainingToday(date plan.Date, nowMinute int) int {
	if !p.Eligible(date) {
		return 0
	}
	start, end, lunchStart, lunchEnd := p.Window(date)

	var remaining int
	switch {
	case nowMinute < start:
		remaining = p.DayCapacity(date)
	case nowMinute >= end:
		remaining = 0
	case lunchStart < lunchEnd && nowMinute >= lunchStart && nowMinute < lunchEnd:
		remaining = end - lunchEnd
	case lunchStart < lunchEnd && nowMinute < lunchStart:
		remaining = (lunchStart - nowMinute) + (end - lunchEnd)
	default:
		remaining = end - nowMinute
	}

	if cap := p.Cap(date); cap < remaining {
		return cap
	}
	return remaining
}

// DaysNeeded returns how many additional days a backlog of totalMinutes
// requires: zero when it fits in what is left of today, otherwise the
// ceiling of the remainder over the daily cap.
func DaysNeeded(totalMinutes, remainingToday, dailyCap int) int {
	if totalMinutes <= remainingToday {
		return 0
	}
	if dailyCap <= 0 {
		dailyCap = timeutil.MinutesPerDay
	}
	rest := totalMinutes - remainingToday
	return (rest + dailyCap - 1) / dailyCap
}
