package core

import (
	"fmt"
	"time"
	_ "time/tzdata" // DISPLAY_TIMEZONE must resolve in minimal images
)

// DefaultTimestampLayout matches the en-US rendering browsers produce for
// Date.toLocaleString, e.g. "3/14/2024, 9:05:07 PM".
const DefaultTimestampLayout = "1/2/2006, 3:04:05 PM"

type TimestampFormatter struct {
	Location *time.Location
	Layout   string
}

// NewTimestampFormatter loads an IANA zone name; "Local" and "" mean the
// server's zone.
func NewTimestampFormatter(zone string) (TimestampFormatter, error) {
	if zone == "" {
		zone = "Local"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return TimestampFormatter{}, fmt.Errorf("failed to load time zone %q: %w", zone, err)
	}
	return TimestampFormatter{Location: loc, Layout: DefaultTimestampLayout}, nil
}

func (f TimestampFormatter) Format(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	layout := f.Layout
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return t.In(loc).Format(layout)
}

// FormatPtr returns nil for a nil instant.
func (f TimestampFormatter) FormatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := f.Format(*t)
	return &s
}
