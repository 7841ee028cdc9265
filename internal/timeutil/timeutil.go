package timeutil

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	mu  sync.RWMutex
	loc = time.UTC
)

// SetLocation sets the zone used to interpret date-only input and to render
// reports. An unknown name keeps the current zone and returns an error.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	l, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", name, err)
	}
	mu.Lock()
	loc = l
	mu.Unlock()
	return nil
}

// Location returns the configured zone.
func Location() *time.Location {
	mu.RLock()
	defer mu.RUnlock()
	return loc
}

// Now returns the current time truncated to millisecond precision, the
// precision timestamps are stored with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ToMillis converts t to UTC unix milliseconds. The zero time maps to 0.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

// FromMillis is the inverse of ToMillis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Common layouts
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04"
	DisplayLayout  = "02 Jan 2006"
)

// FormatISO renders t as RFC 3339 with milliseconds, in UTC.
func FormatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseISO accepts RFC 3339 timestamps as well as the date-only and
// minute-precision forms produced by date inputs.
func ParseISO(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{DateTimeLayout, "2006-01-02T15:04:05", DateLayout} {
		if t, err := time.ParseInLocation(layout, value, Location()); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

// FormatDisplay formats t in the configured zone.
func FormatDisplay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(Location()).Format(DisplayLayout)
}
