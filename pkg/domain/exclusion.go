package domain

import (
	"fmt"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// ExclusionWindow is an inclusive range of UTC calendar days. A timestamp is
// inside the window from the start day's midnight through the end day's
// 23:59:59.999999.
type ExclusionWindow struct {
	Start time.Time
	End   time.Time
}

// NewExclusionWindow truncates both bounds to UTC days and validates ordering.
func NewExclusionWindow(start, end time.Time) (ExclusionWindow, error) {
	s := truncateDay(start)
	e := truncateDay(end)
	if e.Before(s) {
		return ExclusionWindow{}, fmt.Errorf("exclusion window end %s before start %s", e.Format(dayLayout), s.Format(dayLayout))
	}
	return ExclusionWindow{Start: s, End: e}, nil
}

// ParseExclusionWindow parses "YYYY-MM-DD:YYYY-MM-DD" or a single "YYYY-MM-DD".
func ParseExclusionWindow(s string) (ExclusionWindow, error) {
	raw := strings.TrimSpace(s)
	startRaw, endRaw, found := strings.Cut(raw, ":")
	if !found {
		endRaw = startRaw
	}
	start, err := time.Parse(dayLayout, strings.TrimSpace(startRaw))
	if err != nil {
		return ExclusionWindow{}, fmt.Errorf("parse exclusion window %q: %w", s, err)
	}
	end, err := time.Parse(dayLayout, strings.TrimSpace(endRaw))
	if err != nil {
		return ExclusionWindow{}, fmt.Errorf("parse exclusion window %q: %w", s, err)
	}
	return NewExclusionWindow(start, end)
}

// ParseExclusionWindows parses every entry, failing on the first bad one.
func ParseExclusionWindows(values []string) ([]ExclusionWindow, error) {
	out := make([]ExclusionWindow, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		w, err := ParseExclusionWindow(v)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// EndOfDay is the last representable microsecond of the window.
func (w ExclusionWindow) EndOfDay() time.Time {
	return w.End.Add(24*time.Hour - time.Microsecond)
}

// Contains reports whether t falls inside the window.
func (w ExclusionWindow) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(w.Start) && !u.After(w.EndOfDay())
}

func (w ExclusionWindow) String() string {
	return w.Start.Format(dayLayout) + ":" + w.End.Format(dayLayout)
}

// IsExcluded reports whether t falls inside any window.
func IsExcluded(windows []ExclusionWindow, t time.Time) bool {
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
