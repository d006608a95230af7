// Package timeutil holds the calendar arithmetic shared by admission, estimation,
// recurring templates and analytics. Every function is pure; callers pass "now"
// already converted to the vendor's timezone.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	"foodtruck-preorder/internal/models"
)

// Date-range presets accepted by DateRangeForPreset.
const (
	PresetToday      = "today"
	PresetYesterday  = "yesterday"
	PresetTomorrow   = "tomorrow"
	PresetThisWeek   = "thisWeek"
	PresetLast7Days  = "last7Days"
	PresetNext7Days  = "next7Days"
	PresetThisMonth  = "thisMonth"
	PresetLast30Days = "last30Days"
)

// DateLayout is the calendar-date format used for markers and query parameters.
const DateLayout = "2006-01-02"

// Range is a half-open interval [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateRangeForPreset resolves a named preset to calendar-day boundaries around now.
// Weeks start on Monday.
func DateRangeForPreset(preset string, now time.Time) (Range, error) {
	today := StartOfDay(now)
	switch preset {
	case PresetToday:
		return Range{today, today.AddDate(0, 0, 1)}, nil
	case PresetYesterday:
		return Range{today.AddDate(0, 0, -1), today}, nil
	case PresetTomorrow:
		return Range{today.AddDate(0, 0, 1), today.AddDate(0, 0, 2)}, nil
	case PresetThisWeek:
		offset := (int(today.Weekday()) + 6) % 7
		monday := today.AddDate(0, 0, -offset)
		return Range{monday, monday.AddDate(0, 0, 7)}, nil
	case PresetLast7Days:
		return Range{today.AddDate(0, 0, -6), today.AddDate(0, 0, 1)}, nil
	case PresetNext7Days:
		return Range{today, today.AddDate(0, 0, 7)}, nil
	case PresetThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return Range{first, first.AddDate(0, 1, 0)}, nil
	case PresetLast30Days:
		return Range{today.AddDate(0, 0, -29), today.AddDate(0, 0, 1)}, nil
	}
	return Range{}, fmt.Errorf("%w: unknown date range preset %q", models.ErrInvalidArgument, preset)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full English weekday names in any case.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", models.ErrInvalidArgument, name)
	}
	return d, nil
}

// WeekdayName is the canonical lower-case name stored on templates.
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// NormalizeWeekdays validates names and returns them canonicalized and de-duplicated,
// ordered Monday first.
func NormalizeWeekdays(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one weekday is required", models.ErrInvalidArgument)
	}
	var set [7]bool
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		set[d] = true
	}
	out := make([]string, 0, len(names))
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if set[d] {
			out = append(out, WeekdayName(d))
		}
	}
	return out, nil
}

// NextOccurrenceOfWeekday returns midnight of the first date strictly after now's
// date that falls on day. If today is that weekday the result is a week away.
func NextOccurrenceOfWeekday(day string, now time.Time) (time.Time, error) {
	d, err := ParseWeekday(day)
	if err != nil {
		return time.Time{}, err
	}
	today := StartOfDay(now)
	delta := (int(d) - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return today.AddDate(0, 0, delta), nil
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q must be HH:MM", models.ErrInvalidArgument, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Minutes is the number of minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// On places t on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// MinuteOfDay is the minutes elapsed since midnight for t in its own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// NextExecution finds the soonest instant strictly after now that falls on one of
// days at timeOfDay.
func NextExecution(days []string, timeOfDay string, now time.Time) (time.Time, error) {
	tod, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	normalized, err := NormalizeWeekdays(days)
	if err != nil {
		return time.Time{}, err
	}
	var set [7]bool
	for _, n := range normalized {
		set[weekdayNames[n]] = true
	}
	today := StartOfDay(now)
	for offset := 0; offset <= 7; offset++ {
		day := today.AddDate(0, 0, offset)
		if !set[day.Weekday()] {
			continue
		}
		candidate := tod.On(day)
		if candidate.After(now) {
			return candidate, nil
		}
	}
	// unreachable: a non-empty weekday set always matches within eight days
	return time.Time{}, fmt.Errorf("%w: no execution found for %v", models.ErrInvalidArgument, days)
}

// MinutesBetween is the whole-minute distance from a to b after truncating both to
// minute resolution. It is negative when b precedes a.
func MinutesBetween(a, b time.Time) int {
	return int(b.Truncate(time.Minute).Sub(a.Truncate(time.Minute)) / time.Minute)
}

// FormatMinutes renders a duration for display: "45 min", "1h 05m".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
