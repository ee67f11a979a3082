package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseModDuration parses the duration shorthand used by moderation
// commands: "45s", "30m", "2h", "7d", "1w". A bare number is taken as
// minutes. Zero and negative values are rejected.
func ParseModDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := time.Minute
	num := s
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
		num = s[:len(s)-1]
	case 'm':
		unit = time.Minute
		num = s[:len(s)-1]
	case 'h':
		unit = time.Hour
		num = s[:len(s)-1]
	case 'd':
		unit = 24 * time.Hour
		num = s[:len(s)-1]
	case 'w':
		unit = 7 * 24 * time.Hour
		num = s[:len(s)-1]
	}

	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return time.Duration(n) * unit, nil
}

// FormatModDuration renders a duration the way moderation replies
// show it, largest unit first, at most two units.
func FormatModDuration(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}

	type unit struct {
		label string
		size  time.Duration
	}
	units := []unit{
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	}

	var parts []string
	rest := d
	for _, u := range units {
		if rest < u.size {
			continue
		}
		n := rest / u.size
		rest -= n * u.size
		parts = append(parts, fmt.Sprintf("%d%s", n, u.label))
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) == 0 {
		return "<1s"
	}
	return strings.Join(parts, " ")
}
