// Package interp turns sparse status observations into continuous uptime and
// downtime durations bounded by business hours.
package interp

import (
	"time"

	"storepulse/internal/calendar"
	"storepulse/internal/domain"
)

// Interpolate computes the total active and inactive minutes for one store
// inside [rangeStart, rangeEnd], restricted to the store's business hours.
//
// The range is processed one local calendar date at a time. Each date's
// weekday window is materialized as an absolute UTC interval (a window whose
// start is after its end spills into the next date), clipped to the query
// range, and the observations inside the clipped interval are walked with
// last-observation-carried-forward starting from an assumed inactive state.
// An interval with no observations counts entirely as downtime: absence of
// data is treated as evidence of unavailability, not as unknown.
//
// Observations must be ordered ascending by timestamp. The walk starts one
// date before the range start's local date so that an overnight window opened
// the previous evening still contributes its clipped remainder.
func Interpolate(rangeStart, rangeEnd time.Time, obs []domain.StatusObservation, loc *time.Location, windows map[int]calendar.Window) (uptimeMinutes, downtimeMinutes float64) {
	if !rangeEnd.After(rangeStart) {
		return 0, 0
	}

	localStart := rangeStart.In(loc)
	localEnd := rangeEnd.In(loc)
	first := midnight(localStart, loc).AddDate(0, 0, -1)
	last := midnight(localEnd, loc)

	for date := first; !date.After(last); date = date.AddDate(0, 0, 1) {
		w, open := windows[calendar.DayIndex(date)]
		if !open {
			continue
		}

		endDay := date.Day()
		if w.Start.After(w.End) {
			endDay++ // window crosses midnight into the next date
		}
		windowStart := time.Date(date.Year(), date.Month(), date.Day(), w.Start.Hour, w.Start.Minute, w.Start.Second, 0, loc)
		windowEnd := time.Date(date.Year(), date.Month(), endDay, w.End.Hour, w.End.Minute, w.End.Second, 0, loc)

		periodStart := laterOf(rangeStart, windowStart)
		periodEnd := earlierOf(rangeEnd, windowEnd)
		if !periodEnd.After(periodStart) {
			continue
		}

		up, down := carryForward(periodStart, periodEnd, obs)
		uptimeMinutes += up
		downtimeMinutes += down
	}
	return uptimeMinutes, downtimeMinutes
}

// carryForward attributes every instant of [periodStart, periodEnd] to the
// status in effect at that instant, assuming inactive until the first
// observation inside the period.
func carryForward(periodStart, periodEnd time.Time, obs []domain.StatusObservation) (uptimeMinutes, downtimeMinutes float64) {
	cursor := periodStart
	state := domain.StatusInactive
	for _, o := range obs {
		if o.TimestampUTC.Before(periodStart) || o.TimestampUTC.After(periodEnd) {
			continue
		}
		elapsed := o.TimestampUTC.Sub(cursor).Minutes()
		if state == domain.StatusActive {
			uptimeMinutes += elapsed
		} else {
			downtimeMinutes += elapsed
		}
		cursor = o.TimestampUTC
		state = o.Status
	}
	remaining := periodEnd.Sub(cursor).Minutes()
	if state == domain.StatusActive {
		uptimeMinutes += remaining
	} else {
		downtimeMinutes += remaining
	}
	return uptimeMinutes, downtimeMinutes
}

func midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
