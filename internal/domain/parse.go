package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrEmptyTime   = errors.New("empty time")
	ErrInvalidTime = errors.New("invalid time")
)

// ParseHHMM parses "HH:MM" (24-hour) into minutes since midnight.
func ParseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyTime
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidTime, s)
	}
	return h*60 + m, nil
}

// ParseScheduleTimes parses a comma-separated list like "09:00, 20:00" into
// sorted, de-duplicated minutes since midnight.
func ParseScheduleTimes(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyTime
	}
	seen := make(map[int]bool)
	var mins []int
	for _, part := range strings.Split(s, ",") {
		m, err := ParseHHMM(part)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		mins = append(mins, m)
	}
	sort.Ints(mins)
	return mins, nil
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}
