package timeutil

import (
	"errors"
	"testing"
)

func TestSplitCrossMidnight(t *testing.T) {
	t.Parallel()
	first, second, err := Split("23:30", "00:15")
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if first.Start != "23:30" || first.End != EndOfDay {
		t.Fatalf("first segment range = %s-%s", first.Start, first.End)
	}
	if second.Start != "00:00" || second.End != "00:15" {
		t.Fatalf("second segment range = %s-%s", second.Start, second.End)
	}

	total, err := ClockDuration("23:30", "00:15")
	if err != nil {
		t.Fatalf("ClockDuration error: %v", err)
	}
	// Duration conservation: the segments partition the original block.
	if first.Minutes+second.Minutes != total {
		t.Fatalf("segments sum to %d, want %d", first.Minutes+second.Minutes, total)
	}
	if first.Minutes < MinBlockMinutes || second.Minutes < MinBlockMinutes {
		t.Fatalf("segment below minimum: %d / %d", first.Minutes, second.Minutes)
	}
}

func TestSplitRejectsSubMinimumSegment(t *testing.T) {
	t.Parallel()
	// Second segment would be 2 minutes.
	_, _, err := Split("23:00", "00:02")
	var use *UnsplittableSegmentError
	if !errors.As(err, &use) {
		t.Fatalf("expected UnsplittableSegmentError, got %v", err)
	}
	if use.Minutes != 2 {
		t.Fatalf("offending segment = %dm, want 2m", use.Minutes)
	}

	// First segment would be 3 minutes.
	if _, _, err := Split("23:57", "06:00"); !errors.As(err, &use) {
		t.Fatalf("expected UnsplittableSegmentError, got %v", err)
	}
}

func TestSplitRejectsSameDayRange(t *testing.T) {
	t.Parallel()
	if _, _, err := Split("09:00", "10:00"); err == nil {
		t.Fatal("expected error for a range that does not wrap")
	}
}

func TestCrossesMidnight(t *testing.T) {
	t.Parallel()
	if !CrossesMidnight("23:30", "00:15") {
		t.Fatal("23:30-00:15 must wrap")
	}
	// end == start counts as wrapping (full-day block).
	if !CrossesMidnight("08:00", "08:00") {
		t.Fatal("identical start/end must wrap")
	}
	if CrossesMidnight("09:00", "17:00") {
		t.Fatal("same-day range must not wrap")
	}
}
