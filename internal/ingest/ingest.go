// Package ingest loads the three CSV feeds (status observations, business
// hours, timezones) into SQLite. It sits outside the metrics core: the core
// only sees the queryable tables it fills.
package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"storepulse/internal/config"
	"storepulse/internal/domain"
	"storepulse/internal/events"
	"storepulse/internal/repo"
)

type Service struct {
	Repo   repo.Repo
	Events events.Writer
	Config config.IngestConfig
	Log    *slog.Logger
}

// Summary reports what one ingestion run loaded.
type Summary struct {
	Observations int `json:"observations"`
	Windows      int `json:"business_hours"`
	Timezones    int `json:"timezones"`
	SkippedRows  int `json:"skipped_rows"`
}

// Timestamp layouts seen across feed exports.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999 UTC",
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// Run ingests all feeds found in dataDir. The status feed is required; the
// business-hours and timezone feeds are optional because their absence is
// covered by the calendar defaults. Existing data is replaced.
func (s Service) Run(ctx context.Context, dataDir string) (Summary, error) {
	if dataDir == "" {
		dataDir = s.Config.DataDir
	}
	log := s.logger()
	var sum Summary

	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.Repo.TruncateStoreData(ctx, tx)
	}); err != nil {
		return sum, err
	}

	statusPath, ok := findFile(dataDir, s.Config.StatusFiles)
	if !ok {
		return sum, fmt.Errorf("no status feed found in %s (tried %s)", dataDir, strings.Join(s.Config.StatusFiles, ", "))
	}
	if err := s.ingestStatus(ctx, statusPath, &sum); err != nil {
		return sum, fmt.Errorf("status feed %s: %w", statusPath, err)
	}

	if path, ok := findFile(dataDir, s.Config.HoursFiles); ok {
		if err := s.ingestBusinessHours(ctx, path, &sum); err != nil {
			return sum, fmt.Errorf("business hours feed %s: %w", path, err)
		}
	} else {
		log.Warn("no business hours feed; stores default to 24/7", "dir", dataDir)
	}

	if path, ok := findFile(dataDir, s.Config.TimezoneFiles); ok {
		if err := s.ingestTimezones(ctx, path, &sum); err != nil {
			return sum, fmt.Errorf("timezone feed %s: %w", path, err)
		}
	} else {
		log.Warn("no timezone feed; stores default to the configured zone", "dir", dataDir)
	}

	_ = s.Events.Append(ctx, "ingest.completed", "", "", map[string]any{
		"observations": sum.Observations,
		"windows":      sum.Windows,
		"timezones":    sum.Timezones,
		"skipped_rows": sum.SkippedRows,
	})
	log.Info("ingestion completed",
		"observations", sum.Observations, "windows", sum.Windows,
		"timezones", sum.Timezones, "skipped_rows", sum.SkippedRows)
	return sum, nil
}

func (s Service) ingestStatus(ctx context.Context, path string, sum *Summary) error {
	var batch []domain.StatusObservation
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			return s.Repo.InsertObservationsTx(ctx, tx, batch)
		}); err != nil {
			return err
		}
		sum.Observations += len(batch)
		batch = batch[:0]
		return nil
	}
	return s.readFeed(path, []columnSpec{
		{name: "store_id"},
		{name: "timestamp_utc", aliases: s.Config.TimestampColumns},
		{name: "status"},
	}, func(fields []string) error {
		ts, err := parseTimestamp(fields[1])
		if err != nil {
			sum.SkippedRows++
			return nil
		}
		status := domain.Status(strings.TrimSpace(fields[2]))
		if status != domain.StatusActive && status != domain.StatusInactive {
			sum.SkippedRows++
			return nil
		}
		batch = append(batch, domain.StatusObservation{
			StoreID:      strings.TrimSpace(fields[0]),
			TimestampUTC: ts,
			Status:       status,
		})
		if len(batch) >= s.batchSize() {
			return flush()
		}
		return nil
	}, flush)
}

func (s Service) ingestBusinessHours(ctx context.Context, path string, sum *Summary) error {
	var batch []domain.BusinessWindow
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			return s.Repo.InsertBusinessWindowsTx(ctx, tx, batch)
		}); err != nil {
			return err
		}
		sum.Windows += len(batch)
		batch = batch[:0]
		return nil
	}
	return s.readFeed(path, []columnSpec{
		{name: "store_id"},
		{name: "day", aliases: s.Config.DayColumns},
		{name: "start_time_local"},
		{name: "end_time_local"},
	}, func(fields []string) error {
		day, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || day < 0 || day > 6 {
			sum.SkippedRows++
			return nil
		}
		batch = append(batch, domain.BusinessWindow{
			StoreID:    strings.TrimSpace(fields[0]),
			DayOfWeek:  day,
			StartLocal: strings.TrimSpace(fields[2]),
			EndLocal:   strings.TrimSpace(fields[3]),
		})
		if len(batch) >= s.batchSize() {
			return flush()
		}
		return nil
	}, flush)
}

func (s Service) ingestTimezones(ctx context.Context, path string, sum *Summary) error {
	var batch []domain.TimezoneAssignment
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			return s.Repo.InsertTimezonesTx(ctx, tx, batch)
		}); err != nil {
			return err
		}
		sum.Timezones += len(batch)
		batch = batch[:0]
		return nil
	}
	return s.readFeed(path, []columnSpec{
		{name: "store_id"},
		{name: "timezone_str"},
	}, func(fields []string) error {
		zone := strings.TrimSpace(fields[1])
		if zone == "" {
			sum.SkippedRows++
			return nil
		}
		batch = append(batch, domain.TimezoneAssignment{
			StoreID:  strings.TrimSpace(fields[0]),
			Timezone: zone,
		})
		if len(batch) >= s.batchSize() {
			return flush()
		}
		return nil
	}, flush)
}

// columnSpec is one required column: its canonical name plus accepted aliases.
type columnSpec struct {
	name    string
	aliases []string
}

// readFeed streams a CSV file, resolving each required column against the
// header (canonical name first, then aliases in order), and calls row for
// every data line with the values in spec order. done runs after the last
// row, for the final batch flush.
func (s Service) readFeed(path string, specs []columnSpec, row func(fields []string) error, done func() error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	idx := make([]int, len(specs))
	for i, spec := range specs {
		col, ok := resolveColumn(header, spec)
		if !ok {
			return fmt.Errorf("column %q not found in header %v", spec.name, header)
		}
		idx[i] = col
	}

	fields := make([]string, len(specs))
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		for i, col := range idx {
			if col >= len(record) {
				fields[i] = ""
				continue
			}
			fields[i] = record[col]
		}
		if err := row(fields); err != nil {
			return err
		}
	}
	return done()
}

func resolveColumn(header []string, spec columnSpec) (int, bool) {
	names := append([]string{spec.name}, spec.aliases...)
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i, true
			}
		}
	}
	return 0, false
}

// findFile tries candidate filenames in order and returns the first that
// exists.
func findFile(dir string, candidates []string) (string, bool) {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (s Service) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s Service) batchSize() int {
	if s.Config.BatchSize > 0 {
		return s.Config.BatchSize
	}
	return 5000
}

func (s Service) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
