package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration constants.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day  // Approximate
	Year  = 365 * Day // Approximate
)

// TimeRangeAll disables the modification-time cutoff.
const TimeRangeAll = "all"

// ErrInvalidDuration indicates that the duration string could not be parsed.
var ErrInvalidDuration = errors.New("invalid duration format")

// ErrNegativeValue indicates that a negative value was provided.
var ErrNegativeValue = errors.New("value cannot be negative")

var durationPattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*(d|w|mo|y|h|m|s)\s*$`)

// ParseDuration parses a human-readable duration string.
// It supports the following formats:
//   - Days: "1d", "30d"
//   - Weeks: "1w", "2w"
//   - Months: "1mo", "3mo" (30 days per month)
//   - Years: "1y" (365 days per year)
//   - Standard Go duration: "24h", "90m", "1h30m"
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidDuration)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeValue
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		return d, nil
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	var multiplier time.Duration
	switch strings.ToLower(matches[2]) {
	case "d":
		multiplier = Day
	case "w":
		multiplier = Week
	case "mo":
		multiplier = Month
	case "y":
		multiplier = Year
	case "h":
		multiplier = time.Hour
	case "m":
		multiplier = time.Minute
	case "s":
		multiplier = time.Second
	}
	return time.Duration(value * float64(multiplier)), nil
}

// Cutoff returns the oldest modification time a project's time range
// admits, relative to now. "all" and "" yield the zero time.
func Cutoff(timeRange string, now time.Time) (time.Time, error) {
	timeRange = strings.TrimSpace(strings.ToLower(timeRange))
	if timeRange == "" || timeRange == TimeRangeAll {
		return time.Time{}, nil
	}
	d, err := ParseDuration(timeRange)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}
