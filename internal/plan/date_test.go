package plan

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDateRoundTrip(t *testing.T) {
	d, err := ParseDate("2024-03-08")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2024-03-08" {
		t.Fatalf("round trip = %s", d)
	}
	if _, err := ParseDate("2024-13-01"); err == nil {
		t.Fatal("accepted month 13")
	}
	if _, err := ParseDate("08.03.2024"); err == nil {
		t.Fatal("accepted wrong layout")
	}
}

func TestAddDaysCrossesMonthAndYear(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"2024-01-31", 1, "2024-02-01"},
		{"2024-02-28", 1, "2024-02-29"}, // leap year
		{"2024-12-31", 1, "2025-01-01"},
		{"2024-03-04", -4, "2024-02-29"},
	}
	for _, tc := range cases {
		d, _ := ParseDate(tc.in)
		if got := d.AddDays(tc.n).String(); got != tc.want {
			t.Errorf("%s + %d = %s, want %s", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestWeekendAndDaysUntil(t *testing.T) {
	sat, _ := ParseDate("2024-03-09")
	mon, _ := ParseDate("2024-03-11")
	if !sat.IsWeekend() || mon.IsWeekend() {
		t.Fatal("weekend detection wrong")
	}
	if sat.Weekday() != time.Saturday {
		t.Fatalf("weekday = %s", sat.Weekday())
	}
	if got := sat.DaysUntil(mon); got != 2 {
		t.Fatalf("days until = %d", got)
	}
	if got := mon.DaysUntil(sat); got != -2 {
		t.Fatalf("negative days until = %d", got)
	}
}

func TestDateRangeDays(t *testing.T) {
	start, _ := ParseDate("2024-03-04")
	end, _ := ParseDate("2024-03-08")
	r := DateRange{Start: start, End: end}
	if !r.Valid() || r.Days() != 5 {
		t.Fatalf("range = %+v, days = %d", r, r.Days())
	}
	if (DateRange{Start: end, End: start}).Valid() {
		t.Fatal("inverted range reported valid")
	}
}

func TestDateJSONWireForm(t *testing.T) {
	d, _ := ParseDate("2024-03-08")
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2024-03-08"` {
		t.Fatalf("wire form = %s", b)
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != d {
		t.Fatalf("round trip = %s", back)
	}
}
