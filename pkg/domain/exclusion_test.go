package domain

import (
	"testing"
	"time"
)

func TestParseExclusionWindow(t *testing.T) {
	w, err := ParseExclusionWindow("2020-08-10:2020-08-12")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.String() != "2020-08-10:2020-08-12" {
		t.Fatalf("String = %s", w)
	}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2020, 8, 9, 23, 59, 59, 0, time.UTC), false},
		{time.Date(2020, 8, 10, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2020, 8, 12, 23, 59, 59, 999999000, time.UTC), true},
		{time.Date(2020, 8, 13, 0, 0, 0, 0, time.UTC), false},
		// 2020-08-13 09:00 in Sydney is still the 12th in UTC.
		{time.Date(2020, 8, 13, 9, 0, 0, 0, time.FixedZone("AEST", 10*3600)), true},
	}
	for _, c := range cases {
		if got := w.Contains(c.at); got != c.want {
			t.Fatalf("Contains(%v)=%v want %v", c.at, got, c.want)
		}
	}
}

func TestParseExclusionWindowSingleDayAndErrors(t *testing.T) {
	ws, err := ParseExclusionWindows([]string{"2021-01-02", "", " 2021-03-01 : 2021-03-02 "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ws) != 2 || !ws[0].Start.Equal(ws[0].End) {
		t.Fatalf("unexpected windows %v", ws)
	}
	if !IsExcluded(ws, time.Date(2021, 3, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected excluded")
	}
	if IsExcluded(ws, time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected not excluded")
	}
	for _, bad := range []string{"2021-13-01", "2021-01-05:2021-01-01", "yesterday"} {
		if _, err := ParseExclusionWindows([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
