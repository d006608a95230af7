package timeutil

import (
	"errors"
	"testing"
	"time"

	"foodtruck-preorder/internal/models"
)

// 2024-01-03 is a Wednesday.
var wednesday = time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC)

func TestDateRangeForPreset(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		preset     string
		start, end time.Time
	}{
		{PresetToday, day(3), day(4)},
		{PresetYesterday, day(2), day(3)},
		{PresetTomorrow, day(4), day(5)},
		{PresetThisWeek, day(1), day(8)},
		{PresetLast7Days, time.Date(2023, 12, 28, 0, 0, 0, 0, time.UTC), day(4)},
		{PresetNext7Days, day(3), day(10)},
		{PresetThisMonth, day(1), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{PresetLast30Days, time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC), day(4)},
	}
	for _, tt := range cases {
		r, err := DateRangeForPreset(tt.preset, wednesday)
		if err != nil {
			t.Fatalf("DateRangeForPreset(%q) error: %v", tt.preset, err)
		}
		if !r.Start.Equal(tt.start) || !r.End.Equal(tt.end) {
			t.Errorf("DateRangeForPreset(%q) = [%v, %v); want [%v, %v)", tt.preset, r.Start, r.End, tt.start, tt.end)
		}
	}
}

func TestDateRangeForPresetUnknown(t *testing.T) {
	_, err := DateRangeForPreset("fortnight", wednesday)
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("err = %v; want ErrInvalidArgument", err)
	}
}

func TestThisWeekOnSunday(t *testing.T) {
	sunday := time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC)
	r, _ := DateRangeForPreset(PresetThisWeek, sunday)
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !r.Start.Equal(want) {
		t.Errorf("thisWeek start on Sunday = %v; want %v", r.Start, want)
	}
}

func TestNextOccurrenceOfWeekday(t *testing.T) {
	cases := []struct {
		day  string
		want time.Time
	}{
		{"thursday", time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)},
		{"Monday", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"wednesday", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range cases {
		got, err := NextOccurrenceOfWeekday(tt.day, wednesday)
		if err != nil {
			t.Fatalf("NextOccurrenceOfWeekday(%q) error: %v", tt.day, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("NextOccurrenceOfWeekday(%q) = %v; want %v", tt.day, got, tt.want)
		}
	}
	if _, err := NextOccurrenceOfWeekday("funday", wednesday); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("unknown weekday err = %v; want ErrInvalidArgument", err)
	}
}

func TestNextExecution(t *testing.T) {
	days := []string{"monday", "wednesday"}
	// later today
	got, err := NextExecution(days, "12:00", wednesday)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextExecution later today = %v; want %v", got, want)
	}
	// already passed today, next is Monday
	got, _ = NextExecution(days, "09:00", wednesday)
	if want := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextExecution passed today = %v; want %v", got, want)
	}
	// only today's weekday and already passed: a week out
	got, _ = NextExecution([]string{"wednesday"}, "10:30", wednesday)
	if want := time.Date(2024, 1, 10, 10, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextExecution same instant = %v; want %v", got, want)
	}
	if _, err := NextExecution(nil, "10:00", wednesday); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty days err = %v; want ErrInvalidArgument", err)
	}
	if _, err := NextExecution(days, "25:00", wednesday); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("bad time err = %v; want ErrInvalidArgument", err)
	}
}

func TestNormalizeWeekdays(t *testing.T) {
	got, err := NormalizeWeekdays([]string{"Sunday", "thursday", "MONDAY", "thursday"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"monday", "thursday", "sunday"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeWeekdays = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeWeekdays[%d] = %s; want %s", i, got[i], want[i])
		}
	}
}

func TestMinutesBetween(t *testing.T) {
	a := time.Date(2024, 1, 3, 10, 0, 59, 0, time.UTC)
	b := time.Date(2024, 1, 3, 10, 45, 1, 0, time.UTC)
	if got := MinutesBetween(a, b); got != 45 {
		t.Errorf("MinutesBetween = %d; want 45", got)
	}
	if got := MinutesBetween(b, a); got != -45 {
		t.Errorf("MinutesBetween reversed = %d; want -45", got)
	}
}

func TestFormatMinutes(t *testing.T) {
	cases := map[int]string{-3: "0 min", 0: "0 min", 45: "45 min", 60: "1h 00m", 125: "2h 05m"}
	for in, want := range cases {
		if got := FormatMinutes(in); got != want {
			t.Errorf("FormatMinutes(%d) = %q; want %q", in, got, want)
		}
	}
}
