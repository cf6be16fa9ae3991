// Package datekey turns an instant into the calendar-day key used for counter rows.
package datekey

import (
	"fmt"
	"time"
)

// Layout is the YYYY-MM-DD form of a date key.
const Layout = "2006-01-02"

// DefaultZone is used when no zone is configured.
const DefaultZone = "Asia/Kolkata"

// Resolve returns the date key of now in loc. A nil loc means UTC.
func Resolve(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(Layout)
}

// LoadZone resolves a zone identifier; an empty name selects DefaultZone.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return loc, nil
}
