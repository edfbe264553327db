package domain

import (
	"errors"
	"testing"
	"time"
)

// helper: build a time in given tz and return its UTC
func mustLocalUTC(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func TestNextFireAt_LaterToday(t *testing.T) {
	// 07:00 Moscow, entry at 09:00 → today 09:00
	now := mustLocalUTC(t, "Europe/Moscow", 2026, time.May, 6, 7, 0)
	next, err := NextFireAt(9*60, "Europe/Moscow", now)
	if err != nil {
		t.Fatalf("NextFireAt: %v", err)
	}
	want := mustLocalUTC(t, "Europe/Moscow", 2026, time.May, 6, 9, 0)
	if !next.Equal(want) {
		t.Fatalf("want %s, got %s", want, next)
	}
}

func TestNextFireAt_RollsToTomorrow(t *testing.T) {
	// 19:46 Moscow, entry at 09:00 → tomorrow 09:00
	now := mustLocalUTC(t, "Europe/Moscow", 2026, time.May, 5, 19, 46)
	next, err := NextFireAt(9*60, "Europe/Moscow", now)
	if err != nil {
		t.Fatalf("NextFireAt: %v", err)
	}
	want := mustLocalUTC(t, "Europe/Moscow", 2026, time.May, 6, 9, 0)
	if !next.Equal(want) {
		t.Fatalf("want %s, got %s", want, next)
	}
}

func TestNextFireAt_ExactlyNowFiresNow(t *testing.T) {
	now := mustLocalUTC(t, "Europe/Moscow", 2026, time.May, 6, 9, 0)
	next, err := NextFireAt(9*60, "Europe/Moscow", now)
	if err != nil {
		t.Fatalf("NextFireAt: %v", err)
	}
	if !next.Equal(now) {
		t.Fatalf("want %s, got %s", now, next)
	}
}

func TestNextFireAt_SpringForwardFiresAtLocalNine(t *testing.T) {
	// US DST starts 2026-03-08 02:00 EST → 03:00 EDT. A 09:00 entry must
	// fire at 09:00 EDT (13:00 UTC), not at 09:00-in-the-old-offset (14:00 UTC).
	now := mustLocalUTC(t, "America/New_York", 2026, time.March, 8, 1, 0)
	next, err := NextFireAt(9*60, "America/New_York", now)
	if err != nil {
		t.Fatalf("NextFireAt: %v", err)
	}
	want := time.Date(2026, time.March, 8, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("want %s, got %s", want, next)
	}
	got, err := LocalizeTime(next, "America/New_York")
	if err != nil {
		t.Fatalf("localize: %v", err)
	}
	if got != "09:00" {
		t.Fatalf("want 09:00 local, got %s", got)
	}
}

func TestNextFireAt_SpringForwardGapNeverBeforeNow(t *testing.T) {
	// 02:30 does not exist on 2026-03-08 in New York. The result must be a
	// real instant and never lie before now.
	now := mustLocalUTC(t, "America/New_York", 2026, time.March, 8, 1, 0)
	next, err := NextFireAt(2*60+30, "America/New_York", now)
	if err != nil {
		t.Fatalf("NextFireAt: %v", err)
	}
	if next.Before(now) {
		t.Fatalf("next %s is before now %s", next, now)
	}
	if next.Sub(now) > 26*time.Hour {
		t.Fatalf("next %s unexpectedly far from now %s", next, now)
	}
}

func TestNextFireAt_FallBackDuplicatedTime(t *testing.T) {
	// 01:30 occurs twice on 2026-11-01 in New York. Whichever occurrence is
	// chosen, the result is at 01:30 local and not before now.
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2026, time.November, 1, 4, 0, 0, 0, time.UTC) // 00:00 EDT
	next, err := NextFireAt(90, "America/New_York", now)
	if err != nil {
		t.Fatalf("NextFireAt: %v", err)
	}
	if next.Before(now) {
		t.Fatalf("next %s is before now %s", next, now)
	}
	if hm := next.In(loc).Format("15:04"); hm != "01:30" {
		t.Fatalf("want 01:30 local, got %s", hm)
	}
}

func TestNextFireAt_InvalidTimezone(t *testing.T) {
	_, err := NextFireAt(9*60, "Mars/Olympus", time.Now())
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("want ErrInvalidTimezone, got %v", err)
	}
}

func TestNextFireAt_MinuteOutOfRange(t *testing.T) {
	if _, err := NextFireAt(1440, "UTC", time.Now()); err == nil {
		t.Fatal("want error for minute 1440")
	}
}

func TestLocalDay(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	// 2026-05-07 02:30 UTC is still 2026-05-06 in New York.
	ts := time.Date(2026, time.May, 7, 2, 30, 0, 0, time.UTC)
	day := LocalDay(ts, loc)
	if day.Year() != 2026 || day.Month() != time.May || day.Day() != 6 {
		t.Fatalf("want local day 2026-05-06, got %s", day)
	}
	if day.Hour() != 0 || day.Minute() != 0 {
		t.Fatalf("want midnight, got %s", day)
	}
}

func TestValidateTZ(t *testing.T) {
	if _, err := ValidateTZ("Europe/Berlin"); err != nil {
		t.Fatalf("valid tz rejected: %v", err)
	}
	if _, err := ValidateTZ("Nowhere/Nothing"); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("want ErrInvalidTimezone, got %v", err)
	}
}
