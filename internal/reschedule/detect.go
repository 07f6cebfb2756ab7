package reschedule

import (
	"sort"
	"time"

	"timeplan/internal/plan"
	"timeplan/internal/timeutil"
)

// DetectMissed returns every task whose scheduled occurrence has fully
// elapsed (end strictly before asOf) and which is not marked complete.
// Read-only and side-effect-free: safe to call once per sweep tick without
// double-counting.
func DetectMissed(tasks []plan.Task, asOf time.Time) []plan.MissedTask {
	asOfDate := plan.DateOf(asOf)
	nowMinute := asOf.Hour()*60 + asOf.Minute()

	var missed []plan.MissedTask
	for _, t := range tasks {
		if t.Completed || t.Scheduled.IsZero() {
			continue
		}
		end, err := timeutil.ToMinutes(t.Scheduled.End)
		if err != nil {
			continue // malformed placement never counts as missed
		}
		d := t.Scheduled.Date
		// A wraparound block runs past midnight, so its end minute belongs
		// to the following date.
		endDate := d
		if timeutil.CrossesMidnight(t.Scheduled.Start, t.Scheduled.End) {
			endDate = d.AddDays(1)
		}
		elapsed := endDate.Before(asOfDate) || (endDate == asOfDate && end < nowMinute)
		if !elapsed {
			continue
		}
		missed = append(missed, plan.MissedTask{
			TaskID:        t.ID,
			ScheduledDate: d,
			DaysOverdue:   d.DaysUntil(asOfDate),
		})
	}
	return missed
}

// CalculateExtension returns the number of days to extend the plan by: one
// per distinct missed date. Three tasks missed across two dates cost two
// days, not three.
func CalculateExtension(missed []plan.MissedTask) int {
	return len(distinctDates(missed))
}

// distinctDates returns the unique scheduled dates among missed tasks in
// ascending order.
func distinctDates(missed []plan.MissedTask) []plan.Date {
	seen := map[plan.Date]struct{}{}
	var dates []plan.Date
	for _, m := range missed {
		if _, ok := seen[m.ScheduledDate]; ok {
			continue
		}
		seen[m.ScheduledDate] = struct{}{}
		dates = append(dates, m.ScheduledDate)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
