package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimezone is returned for zone names time.LoadLocation rejects.
var ErrInvalidTimezone = errors.New("invalid timezone")

// LoadZone resolves an IANA zone name, wrapping failures in ErrInvalidTimezone.
func LoadZone(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return loc, nil
}

// ValidateTZ checks that tz is a valid IANA location and returns its
// canonical name.
func ValidateTZ(tz string) (string, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// NextFireAt converts a zone-naive minute-of-day into the next absolute
// instant >= now in the given IANA zone. A time-of-day already passed today
// rolls to tomorrow. Local times skipped by a spring-forward transition are
// normalized by time.Date onto the next valid instant; times duplicated by a
// fall-back resolve to a single instant, which is used as long as it is not
// before now.
func NextFireAt(minuteOfDay int, tz string, now time.Time) (time.Time, error) {
	if minuteOfDay < 0 || minuteOfDay > 1439 {
		return time.Time{}, fmt.Errorf("minute of day out of range: %d", minuteOfDay)
	}
	loc, err := LoadZone(tz)
	if err != nil {
		return time.Time{}, err
	}

	localNow := now.In(loc)
	h, m := minuteOfDay/60, minuteOfDay%60

	candidate := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), h, m, 0, 0, loc)
	if candidate.Before(now) {
		tomorrow := localNow.AddDate(0, 0, 1)
		candidate = time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), h, m, 0, 0, loc)
	}
	return candidate.UTC(), nil
}

// LocalDay returns midnight of t's calendar day in loc. Analytics uses it to
// bucket records into user-local days instead of UTC days.
func LocalDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// LocalizeTime formats t in the given timezone as HH:MM.
func LocalizeTime(t time.Time, tz string) (string, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format("15:04"), nil
}
