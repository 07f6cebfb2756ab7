package schedule

import (
	"fmt"
	"sort"
	"strings"

	"timeplan/internal/capacity"
	"timeplan/internal/plan"
	"timeplan/internal/timeutil"
)

// Result is the packer's output. Placements hold every task that fit;
// Unplaced lists the IDs that did not, in placement-attempt order.
type Result struct {
	Placements []plan.Placement
	Unplaced   []string
}

// CapacityExceededError means the date window could not absorb the whole
// backlog. Work is never silently discarded: every task that failed to
// place is listed, with tasks too large for any single day called out
// separately so the host can render an actionable message.
type CapacityExceededError struct {
	Unplaced  []string
	Oversized []string // subset of Unplaced: duration exceeds every eligible day
}

func (e *CapacityExceededError) Error() string {
	msg := fmt.Sprintf("window capacity exceeded: %d task(s) unplaced [%s]",
		len(e.Unplaced), strings.Join(e.Unplaced, ", "))
	if len(e.Oversized) > 0 {
		msg += fmt.Sprintf("; %d exceed single-day capacity [%s]",
			len(e.Oversized), strings.Join(e.Oversized, ", "))
	}
	return msg
}

// ScheduleTasks packs the backlog into [window.Start, window.End].
//
// Ordering is (priority ascending, origin index ascending): urgent and
// earlier-declared work lands first. Days are walked forward; each eligible
// day is filled strictly from the front of the queue until its remaining
// capacity cannot take the next task, then the walk advances carrying the
// remainder. Weekends are skipped unless the policy allows them. Blocks
// start at the window open, run back to back, and jump over the lunch gap.
//
// Tasks larger than every eligible day's effective capacity are reported
// unplaced up front; one pathological task never stalls the rest of the
// queue. When anything stays unplaced the returned error is a
// *CapacityExceededError and Result still carries the successful
// placements as a diagnostic.
func ScheduleTasks(backlog []plan.Task, window plan.DateRange, policy capacity.Policy) (Result, error) {
	if err := policy.Validate(); err != nil {
		return Result{}, err
	}
	if !window.Valid() {
		return Result{}, fmt.Errorf("invalid date window %s..%s", window.Start, window.End)
	}
	for _, t := range backlog {
		if err := timeutil.ValidateDuration(t.DurationMinutes, t.Kind != plan.KindAuto); err != nil {
			return Result{}, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}

	queue := make([]plan.Task, len(backlog))
	copy(queue, backlog)
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].Priority != queue[j].Priority {
			return queue[i].Priority < queue[j].Priority
		}
		return queue[i].OriginIndex < queue[j].OriginIndex
	})

	maxDay := maxPlaceableBlock(window, policy)

	var res Result
	var oversized []string
	fit := queue[:0]
	for _, t := range queue {
		if t.DurationMinutes > maxDay {
			oversized = append(oversized, t.ID)
			continue
		}
		fit = append(fit, t)
	}
	queue = fit

	for date := window.Start; !date.After(window.End) && len(queue) > 0; date = date.AddDays(1) {
		if !policy.Eligible(date) {
			continue
		}
		dayCap := policy.EffectiveCapacity(date)
		if dayCap <= 0 {
			continue
		}
		wStart, wEnd, lunchStart, lunchEnd := policy.Window(date)

		cursor := wStart
		used := 0
		for len(queue) > 0 {
			next := queue[0]
			d := next.DurationMinutes
			if used+d > dayCap {
				break
			}
			start := cursor
			// A block that would collide with lunch starts after it.
			if lunchStart < lunchEnd && start < lunchEnd && start+d > lunchStart {
				start = lunchEnd
			}
			if start+d > wEnd {
				break
			}
			res.Placements = append(res.Placements, plan.Placement{
				TaskID:          next.ID,
				Date:            date,
				Start:           timeutil.ToClock(start),
				End:             timeutil.ToClock(start + d),
				DurationMinutes: d,
			})
			cursor = start + d
			used += d
			queue = queue[1:]
		}
	}

	res.Unplaced = append(res.Unplaced, oversized...)
	for _, t := range queue {
		res.Unplaced = append(res.Unplaced, t.ID)
	}
	if len(res.Unplaced) > 0 {
		return res, &CapacityExceededError{Unplaced: res.Unplaced, Oversized: oversized}
	}
	return res, nil
}

// maxPlaceableBlock returns the largest single block any day in the window
// can take. Blocks are contiguous and never straddle lunch, so on weekdays
// the bound is the longer of the morning and afternoon stretches, further
// bounded by the day cap.
func maxPlaceableBlock(window plan.DateRange, policy capacity.Policy) int {
	max := 0
	for date := window.Start; !date.After(window.End); date = date.AddDays(1) {
		if !policy.Eligible(date) {
			continue
		}
		wStart, wEnd, lunchStart, lunchEnd := policy.Window(date)
		segment := wEnd - wStart
		if lunchStart < lunchEnd {
			morning := lunchStart - wStart
			afternoon := wEnd - lunchEnd
			segment = morning
			if afternoon > segment {
				segment = afternoon
			}
		}
		if cap := policy.EffectiveCapacity(date); cap < segment {
			segment = cap
		}
		if segment > max {
			max = segment
		}
	}
	return max
}
