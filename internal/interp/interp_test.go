package interp_test

import (
	"math"
	"testing"
	"time"

	"storepulse/internal/calendar"
	"storepulse/internal/domain"
	"storepulse/internal/interp"
)

func fullWeek() map[int]calendar.Window {
	w := calendar.Window{
		Start: calendar.TimeOfDay{Hour: 0, Minute: 0, Second: 0},
		End:   calendar.TimeOfDay{Hour: 23, Minute: 59, Second: 59},
	}
	m := make(map[int]calendar.Window, 7)
	for d := 0; d < 7; d++ {
		m[d] = w
	}
	return m
}

func window(startH, startM, endH, endM int) calendar.Window {
	return calendar.Window{
		Start: calendar.TimeOfDay{Hour: startH, Minute: startM},
		End:   calendar.TimeOfDay{Hour: endH, Minute: endM},
	}
}

func obs(storeID string, ts time.Time, status domain.Status) domain.StatusObservation {
	return domain.StatusObservation{StoreID: storeID, TimestampUTC: ts, Status: status}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestNoObservationsAllDowntime(t *testing.T) {
	// 2023-06-05 is a Monday.
	start := time.Date(2023, 6, 5, 10, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 5, 12, 0, 0, 0, time.UTC)
	windows := map[int]calendar.Window{0: window(9, 0, 17, 0)}

	up, down := interp.Interpolate(start, end, nil, time.UTC, windows)
	if up != 0 {
		t.Fatalf("uptime = %v, want 0", up)
	}
	if !approxEqual(down, 120) {
		t.Fatalf("downtime = %v, want 120", down)
	}
	if !approxEqual(up+down, 120) {
		t.Fatalf("uptime+downtime = %v, want full business duration 120", up+down)
	}
}

func TestSingleActiveObservationAtMidpoint(t *testing.T) {
	start := time.Date(2023, 6, 5, 9, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 5, 17, 0, 0, 0, time.UTC)
	windows := map[int]calendar.Window{0: window(9, 0, 17, 0)}
	observations := []domain.StatusObservation{
		obs("s1", time.Date(2023, 6, 5, 13, 0, 0, 0, time.UTC), domain.StatusActive),
	}

	up, down := interp.Interpolate(start, end, observations, time.UTC, windows)
	if !approxEqual(up, 240) {
		t.Fatalf("uptime = %v, want 240 (midpoint to window end)", up)
	}
	if !approxEqual(down, 240) {
		t.Fatalf("downtime = %v, want 240 (window start to midpoint)", down)
	}
}

func TestCarriedForwardAcrossObservations(t *testing.T) {
	start := time.Date(2023, 6, 5, 9, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 5, 12, 0, 0, 0, time.UTC)
	windows := map[int]calendar.Window{0: window(9, 0, 17, 0)}
	observations := []domain.StatusObservation{
		obs("s1", time.Date(2023, 6, 5, 9, 30, 0, 0, time.UTC), domain.StatusActive),
		obs("s1", time.Date(2023, 6, 5, 11, 0, 0, 0, time.UTC), domain.StatusInactive),
	}

	up, down := interp.Interpolate(start, end, observations, time.UTC, windows)
	// inactive 9:00-9:30, active 9:30-11:00, inactive 11:00-12:00
	if !approxEqual(up, 90) {
		t.Fatalf("uptime = %v, want 90", up)
	}
	if !approxEqual(down, 90) {
		t.Fatalf("downtime = %v, want 90", down)
	}
}

func TestOvernightWindowSplitsAcrossUTCDateBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	// Friday local 22:00 - 02:00 is Saturday 02:00 - 06:00 UTC during EDT.
	windows := map[int]calendar.Window{4: window(22, 0, 2, 0)}
	start := time.Date(2023, 6, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 11, 0, 0, 0, 0, time.UTC)

	up, down := interp.Interpolate(start, end, nil, loc, windows)
	if up != 0 || !approxEqual(down, 240) {
		t.Fatalf("up=%v down=%v, want 0/240 for the 4h overnight window", up, down)
	}

	observations := []domain.StatusObservation{
		obs("s1", time.Date(2023, 6, 10, 4, 0, 0, 0, time.UTC), domain.StatusActive),
	}
	up, down = interp.Interpolate(start, end, observations, loc, windows)
	if !approxEqual(up, 120) || !approxEqual(down, 120) {
		t.Fatalf("up=%v down=%v, want 120/120", up, down)
	}
}

func TestOvernightWindowOpenedBeforeRangeStart(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	windows := map[int]calendar.Window{4: window(22, 0, 2, 0)}
	// Range starts mid-window: Saturday 04:00 UTC is Saturday 00:00 EDT,
	// inside Friday's overnight window which runs until 06:00 UTC.
	start := time.Date(2023, 6, 10, 4, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 10, 12, 0, 0, 0, time.UTC)

	up, down := interp.Interpolate(start, end, nil, loc, windows)
	if up != 0 || !approxEqual(down, 120) {
		t.Fatalf("up=%v down=%v, want the clipped 2h remainder as downtime", up, down)
	}
}

func TestClosedDaysContributeNothing(t *testing.T) {
	// Windows only Monday through Wednesday; the other four days are closed.
	windows := map[int]calendar.Window{
		0: window(9, 0, 10, 0),
		1: window(9, 0, 10, 0),
		2: window(9, 0, 10, 0),
	}
	start := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC) // Monday
	end := start.AddDate(0, 0, 7)

	up, down := interp.Interpolate(start, end, nil, time.UTC, windows)
	if up != 0 || !approxEqual(down, 180) {
		t.Fatalf("up=%v down=%v, want 0/180 (three 1h windows)", up, down)
	}
}

func TestFullWeekDefaultCoversWholeRange(t *testing.T) {
	start := time.Date(2023, 6, 5, 6, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	up, down := interp.Interpolate(start, end, nil, time.UTC, fullWeek())
	// 24h minus the 1s gap between 23:59:59 and midnight.
	want := 24*60 - 1.0/60
	if up != 0 || !approxEqual(down, want) {
		t.Fatalf("up=%v down=%v, want 0/%v", up, down, want)
	}
}

func TestObservationsOutsidePeriodIgnored(t *testing.T) {
	start := time.Date(2023, 6, 5, 9, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 5, 10, 0, 0, 0, time.UTC)
	windows := map[int]calendar.Window{0: window(9, 0, 17, 0)}
	// Active just before the range: must not seed the running state.
	observations := []domain.StatusObservation{
		obs("s1", time.Date(2023, 6, 5, 8, 59, 0, 0, time.UTC), domain.StatusActive),
	}

	up, down := interp.Interpolate(start, end, observations, time.UTC, windows)
	if up != 0 || !approxEqual(down, 60) {
		t.Fatalf("up=%v down=%v, want 0/60 (state assumed inactive at period start)", up, down)
	}
}

func TestEmptyRange(t *testing.T) {
	at := time.Date(2023, 6, 5, 9, 0, 0, 0, time.UTC)
	up, down := interp.Interpolate(at, at, nil, time.UTC, fullWeek())
	if up != 0 || down != 0 {
		t.Fatalf("up=%v down=%v, want 0/0 for empty range", up, down)
	}
}
