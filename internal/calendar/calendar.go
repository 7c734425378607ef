// Package calendar resolves a store's timezone and weekly business hours,
// applying the default policies for missing data.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storepulse/internal/repo"
)

// TimeOfDay is a local wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM:SS" (or "HH:MM") local times as stored in the
// business_hours table.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &t.Hour, &t.Minute, &t.Second); err != nil {
		t.Second = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
		}
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) After(o TimeOfDay) bool {
	return t.Seconds() > o.Seconds()
}

// Window is one weekday's local business hours. Start after End means the
// window runs past midnight into the next calendar date.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// DayIndex maps a time to the 0=Monday..6=Sunday convention used by the
// business_hours table.
func DayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

var fullDay = Window{Start: TimeOfDay{0, 0, 0}, End: TimeOfDay{23, 59, 59}}

// Resolver looks up per-store calendars.
type Resolver struct {
	Repo        repo.Repo
	DefaultZone string
}

// Resolve returns the store's location and its weekday->window mapping.
//
// The timezone lookup never fails: an absent or unloadable zone falls back to
// the default zone, and UTC as a last resort. The window mapping applies two
// distinct fallbacks: a store with no rows at all is open 24/7, while a store
// with rows for only some days is closed on the days it does not list.
func (r Resolver) Resolve(ctx context.Context, storeID string) (*time.Location, map[int]Window, error) {
	loc := r.location(ctx, storeID)

	rows, err := r.Repo.BusinessHoursFor(ctx, storeID)
	if err != nil {
		return nil, nil, fmt.Errorf("business hours for %s: %w", storeID, err)
	}
	windows := make(map[int]Window, 7)
	if len(rows) == 0 {
		for day := 0; day < 7; day++ {
			windows[day] = fullDay
		}
		return loc, windows, nil
	}
	for _, row := range rows {
		if row.DayOfWeek < 0 || row.DayOfWeek > 6 {
			return nil, nil, fmt.Errorf("store %s: day_of_week %d out of range", storeID, row.DayOfWeek)
		}
		start, err := ParseTimeOfDay(row.StartLocal)
		if err != nil {
			return nil, nil, fmt.Errorf("store %s day %d: %w", storeID, row.DayOfWeek, err)
		}
		end, err := ParseTimeOfDay(row.EndLocal)
		if err != nil {
			return nil, nil, fmt.Errorf("store %s day %d: %w", storeID, row.DayOfWeek, err)
		}
		windows[row.DayOfWeek] = Window{Start: start, End: end}
	}
	return loc, windows, nil
}

func (r Resolver) location(ctx context.Context, storeID string) *time.Location {
	zone, err := r.Repo.TimezoneFor(ctx, storeID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		zone = ""
	}
	if zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(r.DefaultZone); err == nil {
		return loc
	}
	return time.UTC
}
