package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldKind is how a minute or hour field matches.
type fieldKind int

const (
	fieldAny fieldKind = iota
	fieldEvery
	fieldExact
)

type field struct {
	kind  fieldKind
	value int
}

func (f field) matches(v int) bool {
	switch f.kind {
	case fieldEvery:
		return v%f.value == 0
	case fieldExact:
		return v == f.value
	default:
		return true
	}
}

func (f field) String() string {
	switch f.kind {
	case fieldEvery:
		return fmt.Sprintf("*/%d", f.value)
	case fieldExact:
		return fmt.Sprintf("%02d", f.value)
	default:
		return "*"
	}
}

// Schedule is a five field cron expression of which only minute and hour are
// interpreted. The remaining fields are kept verbatim.
type Schedule struct {
	Expr       string
	minute     field
	hour       field
	DayOfMonth string
	Month      string
	DayOfWeek  string
}

// Parse accepts "minute hour day-of-month month day-of-week". Minute and hour
// take "*", "*/N" or a single number.
func Parse(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("invalid cron schedule %q: expected 5 space-separated parts, got %d", expr, len(parts))
	}

	minute, err := parseField(parts[0], 59)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron minute %q: %w", parts[0], err)
	}
	hour, err := parseField(parts[1], 23)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron hour %q: %w", parts[1], err)
	}

	return Schedule{
		Expr:       strings.Join(parts, " "),
		minute:     minute,
		hour:       hour,
		DayOfMonth: parts[2],
		Month:      parts[3],
		DayOfWeek:  parts[4],
	}, nil
}

func parseField(raw string, max int) (field, error) {
	switch {
	case raw == "*":
		return field{kind: fieldAny}, nil
	case strings.HasPrefix(raw, "*/"):
		n, err := strconv.Atoi(raw[2:])
		if err != nil || n <= 0 || n > max {
			return field{}, fmt.Errorf("interval must be between 1 and %d", max)
		}
		return field{kind: fieldEvery, value: n}, nil
	default:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > max {
			return field{}, fmt.Errorf("value must be between 0 and %d", max)
		}
		return field{kind: fieldExact, value: n}, nil
	}
}

// Next returns the first whole minute strictly after t that matches.
func (s Schedule) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	// every minute/hour combination repeats within a day
	for i := 0; i < 24*60; i++ {
		if s.hour.matches(next.Hour()) && s.minute.matches(next.Minute()) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return next
}

func (s Schedule) String() string {
	return fmt.Sprintf("%s %s %s %s %s", s.minute, s.hour, s.DayOfMonth, s.Month, s.DayOfWeek)
}
