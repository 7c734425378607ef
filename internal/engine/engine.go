package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"storepulse/internal/calendar"
	"storepulse/internal/config"
	"storepulse/internal/domain"
	"storepulse/internal/events"
	"storepulse/internal/interp"
	"storepulse/internal/repo"
)

// Engine computes per-store uptime metrics. Constructed once at process start
// and passed to whatever needs it; there is no package-level instance.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Calendar calendar.Resolver
	Events   events.Writer
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Calendar: calendar.Resolver{Repo: r, DefaultZone: cfg.Report.DefaultTimezone},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ReferenceTime returns the frozen "now" for a report run: the maximum
// observed timestamp across all stores. Falls back to the wall clock only
// when the dataset is completely empty.
func (e Engine) ReferenceTime(ctx context.Context) (time.Time, error) {
	ts, err := e.Repo.MaxObservationTimestamp(ctx)
	if err == repo.ErrNotFound {
		return e.now().UTC(), nil
	}
	return ts, err
}

// ComputeStoreMetrics evaluates the three trailing windows ending at ref for
// one store. Absent timezone, business hours, or observations are covered by
// the documented defaults; the only errors are malformed stored data or query
// failures.
func (e Engine) ComputeStoreMetrics(ctx context.Context, storeID string, ref time.Time) (domain.StoreMetrics, error) {
	loc, windows, err := e.Calendar.Resolve(ctx, storeID)
	if err != nil {
		return domain.StoreMetrics{}, err
	}

	upHour, downHour, err := e.windowMinutes(ctx, storeID, ref.Add(-time.Hour), ref, loc, windows)
	if err != nil {
		return domain.StoreMetrics{}, err
	}
	upDay, downDay, err := e.windowMinutes(ctx, storeID, ref.AddDate(0, 0, -1), ref, loc, windows)
	if err != nil {
		return domain.StoreMetrics{}, err
	}
	upWeek, downWeek, err := e.windowMinutes(ctx, storeID, ref.AddDate(0, 0, -7), ref, loc, windows)
	if err != nil {
		return domain.StoreMetrics{}, err
	}

	// Last hour reports minutes, day and week report hours.
	return domain.StoreMetrics{
		StoreID:          storeID,
		UptimeLastHour:   round2(upHour),
		UptimeLastDay:    round2(upDay / 60),
		UptimeLastWeek:   round2(upWeek / 60),
		DowntimeLastHour: round2(downHour),
		DowntimeLastDay:  round2(downDay / 60),
		DowntimeLastWeek: round2(downWeek / 60),
	}, nil
}

func (e Engine) windowMinutes(ctx context.Context, storeID string, start, end time.Time, loc *time.Location, windows map[int]calendar.Window) (up, down float64, err error) {
	obs, err := e.Repo.ObservationsInRange(ctx, storeID, start, end)
	if err != nil {
		return 0, 0, fmt.Errorf("observations for %s: %w", storeID, err)
	}
	up, down = interp.Interpolate(start, end, obs, loc, windows)
	return up, down, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
