package clock

import (
	"fmt"
	"strings"
	"time"
)

// Clock returns the current instant in the configured zone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Zoned is the system clock shifted into a fixed location.
type Zoned struct {
	loc *time.Location
}

// New returns a clock for the given IANA zone name. An empty name means UTC.
func New(zone string) (*Zoned, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" || strings.EqualFold(zone, "utc") {
		return &Zoned{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", zone, err)
	}
	return &Zoned{loc: loc}, nil
}

func (c *Zoned) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *Zoned) Location() *time.Location {
	return c.loc
}

// Fixed always returns the same instant. Used by tests and one-off tooling.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}

func (f Fixed) Location() *time.Location {
	if f.At.Location() == nil {
		return time.UTC
	}
	return f.At.Location()
}
