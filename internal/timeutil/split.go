package timeutil

import "fmt"

// Segment is one half of a cross-midnight split. Start/End are HH:MM;
// Minutes is the segment's true length (the End label of the first half is
// pinned to 23:59, so End-Start understates it by one minute there).
type Segment struct {
	Start   string
	End     string
	Minutes int
}

// UnsplittableSegmentError means a cross-midnight split would produce a
// segment below the minimum block duration. The placement must surface this
// rather than silently emit a sub-minimum block.
type UnsplittableSegmentError struct {
	Start   string
	End     string
	Minutes int // offending segment length
}

func (e *UnsplittableSegmentError) Error() string {
	return fmt.Sprintf("cannot split %s-%s across midnight: %dm segment is below the %dm minimum",
		e.Start, e.End, e.Minutes, MinBlockMinutes)
}

// Split divides a cross-midnight clock range into two same-day segments:
// the first ends at 23:59 on the start date with duration 1440-start, the
// second starts at 00:00 on the next date with duration end. The two
// Minutes fields always sum to Duration(start, end).
//
// Split fails when the range does not actually wrap, or when either
// segment would be shorter than MinBlockMinutes.
func Split(start, end string) (first, second Segment, err error) {
	s, err := ToMinutes(start)
	if err != nil {
		return Segment{}, Segment{}, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return Segment{}, Segment{}, err
	}
	if e > s {
		return Segment{}, Segment{}, fmt.Errorf("range %s-%s does not cross midnight", start, end)
	}

	firstMin := MinutesPerDay - s
	secondMin := e
	if firstMin < MinBlockMinutes {
		return Segment{}, Segment{}, &UnsplittableSegmentError{Start: start, End: end, Minutes: firstMin}
	}
	if secondMin < MinBlockMinutes {
		return Segment{}, Segment{}, &UnsplittableSegmentError{Start: start, End: end, Minutes: secondMin}
	}

	first = Segment{Start: ToClock(s), End: EndOfDay, Minutes: firstMin}
	second = Segment{Start: "00:00", End: ToClock(e), Minutes: secondMin}
	return first, second, nil
}

// CrossesMidnight reports whether the HH:MM range wraps past 24:00 under
// the end <= start rule.
func CrossesMidnight(start, end string) bool {
	s, err1 := ToMinutes(start)
	e, err2 := ToMinutes(end)
	if err1 != nil || err2 != nil {
		return false
	}
	return e <= s
}
