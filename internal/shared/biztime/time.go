// Package biztime centralizes time handling for aggregation. All storage and
// transport use UTC; aggregation day and month keys are derived from the
// business timezone, which defaults to UTC so calendar days line up with the
// analytics contract.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultTimezone is the business timezone used for day/month boundaries.
	DefaultTimezone = "UTC"

	dayKeyLayout   = "2006-01-02"
	monthKeyLayout = "2006-01"
)

var (
	bizLocation *time.Location
	bizOnce     sync.Once
	initErr     error
)

// Init sets the business timezone. Call once at startup; empty tz keeps UTC.
func Init(tz string) error {
	bizOnce.Do(func() {
		if tz == "" {
			tz = DefaultTimezone
		}
		bizLocation, initErr = time.LoadLocation(tz)
	})
	return initErr
}

// MustInit is Init that panics on a bad timezone name.
func MustInit(tz string) {
	if err := Init(tz); err != nil {
		panic(fmt.Sprintf("biztime: invalid timezone %q: %v", tz, err))
	}
}

// Location returns the business timezone, auto-initializing to UTC.
func Location() *time.Location {
	if bizLocation == nil {
		if err := Init(""); err != nil {
			panic(fmt.Sprintf("biztime: auto-init failed: %v", err))
		}
	}
	return bizLocation
}

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// DayKey formats t as the aggregation day key, e.g. "2026-08-28".
func DayKey(t time.Time) string {
	return t.In(Location()).Format(dayKeyLayout)
}

// MonthKey formats t as the leaderboard month key, e.g. "2026-08".
func MonthKey(t time.Time) string {
	return t.In(Location()).Format(monthKeyLayout)
}

// StartOfDayUTC returns 00:00:00 of t's business day, converted to UTC.
func StartOfDayUTC(t time.Time) time.Time {
	bt := t.In(Location())
	return time.Date(bt.Year(), bt.Month(), bt.Day(), 0, 0, 0, 0, Location()).UTC()
}

// EndOfDayUTC returns the last instant of t's business day, converted to UTC.
func EndOfDayUTC(t time.Time) time.Time {
	bt := t.In(Location())
	return time.Date(bt.Year(), bt.Month(), bt.Day(), 23, 59, 59, 999999999, Location()).UTC()
}
