package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Calendar-free unit lengths. A year is a Julian year (365.25 days) and a
// month is a twelfth of it, so every value is a fixed number of milliseconds.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Year  = time.Duration(365.25 * float64(Day))
	Month = Year / 12
)

var ErrInvalidDuration = errors.New("invalid duration")

var reHumanDuration = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([a-z]+)$`)

var durationUnits = map[string]time.Duration{
	"ms":           time.Millisecond,
	"msec":         time.Millisecond,
	"millisecond":  time.Millisecond,
	"milliseconds": time.Millisecond,
	"s":            time.Second,
	"sec":          time.Second,
	"secs":         time.Second,
	"second":       time.Second,
	"seconds":      time.Second,
	"m":            time.Minute,
	"min":          time.Minute,
	"mins":         time.Minute,
	"minute":       time.Minute,
	"minutes":      time.Minute,
	"h":            time.Hour,
	"hr":           time.Hour,
	"hrs":          time.Hour,
	"hour":         time.Hour,
	"hours":        time.Hour,
	"d":            Day,
	"day":          Day,
	"days":         Day,
	"w":            Week,
	"week":         Week,
	"weeks":        Week,
	"month":        Month,
	"months":       Month,
	"y":            Year,
	"yr":           Year,
	"yrs":          Year,
	"year":         Year,
	"years":        Year,
}

// ParseDuration converts human strings such as "5 minutes", "2.5 hours" or
// "1 year" into a time.Duration. Units are case-insensitive and may be
// abbreviated. Zero and negative values are rejected.
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidDuration)
	}

	m := reHumanDuration.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q (expected \"<number> <unit>\", e.g. \"5 minutes\")", ErrInvalidDuration, raw)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, raw, err)
	}
	unit, ok := durationUnits[m[2]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidDuration, m[2], raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidDuration, raw)
	}

	total := value * float64(unit)
	// float64(math.MaxInt64) is 2^63, one past the largest Duration
	if total >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, raw)
	}
	return time.Duration(math.Round(total)), nil
}

// ParseDurationMillis is ParseDuration expressed in milliseconds.
func ParseDurationMillis(raw string) (int64, error) {
	d, err := ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}
