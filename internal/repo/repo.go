package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storepulse/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// TimeFormat is the canonical storage format for UTC instants. Fixed width so
// string comparison in SQL matches chronological order.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// --- observations ---

func (r Repo) InsertObservationsTx(ctx context.Context, tx *sql.Tx, obs []domain.StatusObservation) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO store_status(store_id,timestamp_utc,status) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.StoreID, FormatTime(o.TimestampUTC), string(o.Status)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) DistinctStoreIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT store_id FROM store_status ORDER BY store_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MaxObservationTimestamp returns the latest observed instant across all
// stores. ErrNotFound when no observations exist at all.
func (r Repo) MaxObservationTimestamp(ctx context.Context) (time.Time, error) {
	var ts sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(timestamp_utc) FROM store_status`).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, ErrNotFound
	}
	return ParseTime(ts.String)
}

// ObservationsInRange returns a store's observations with start <= ts <= end,
// ascending by timestamp.
func (r Repo) ObservationsInRange(ctx context.Context, storeID string, start, end time.Time) ([]domain.StatusObservation, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT store_id,timestamp_utc,status FROM store_status
		 WHERE store_id=? AND timestamp_utc>=? AND timestamp_utc<=?
		 ORDER BY timestamp_utc ASC`,
		storeID, FormatTime(start), FormatTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusObservation
	for rows.Next() {
		var o domain.StatusObservation
		var ts, status string
		if err := rows.Scan(&o.StoreID, &ts, &status); err != nil {
			return nil, err
		}
		o.TimestampUTC, err = ParseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("observation timestamp for %s: %w", storeID, err)
		}
		o.Status = domain.Status(status)
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) CountObservations(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM store_status`).Scan(&n)
	return n, err
}

// --- business hours / timezones ---

func (r Repo) InsertBusinessWindowsTx(ctx context.Context, tx *sql.Tx, windows []domain.BusinessWindow) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO business_hours(store_id,day_of_week,start_time_local,end_time_local) VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, w := range windows {
		if _, err := stmt.ExecContext(ctx, w.StoreID, w.DayOfWeek, w.StartLocal, w.EndLocal); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) InsertTimezonesTx(ctx context.Context, tx *sql.Tx, zones []domain.TimezoneAssignment) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO store_timezones(store_id,timezone_str) VALUES (?,?)
ON CONFLICT(store_id) DO UPDATE SET timezone_str=excluded.timezone_str`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, z := range zones {
		if _, err := stmt.ExecContext(ctx, z.StoreID, z.Timezone); err != nil {
			return err
		}
	}
	return nil
}

// TimezoneFor returns the store's IANA zone name. ErrNotFound when the store
// has no assignment; callers apply the default zone.
func (r Repo) TimezoneFor(ctx context.Context, storeID string) (string, error) {
	var zone string
	err := r.DB.QueryRowContext(ctx, `SELECT timezone_str FROM store_timezones WHERE store_id=?`, storeID).Scan(&zone)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return zone, err
}

// BusinessHoursFor returns all stored windows for a store; an empty result
// means the 24/7 default applies.
func (r Repo) BusinessHoursFor(ctx context.Context, storeID string) ([]domain.BusinessWindow, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT store_id,day_of_week,start_time_local,end_time_local FROM business_hours WHERE store_id=? ORDER BY day_of_week`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BusinessWindow
	for rows.Next() {
		var w domain.BusinessWindow
		if err := rows.Scan(&w.StoreID, &w.DayOfWeek, &w.StartLocal, &w.EndLocal); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// TruncateStoreData clears the three ingested tables before a re-ingest.
func (r Repo) TruncateStoreData(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"store_status", "business_hours", "store_timezones"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// --- reports ---

func (r Repo) InsertReport(ctx context.Context, rep domain.Report) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO reports(id,status,created_at,file_path) VALUES (?,?,?,?)`,
		rep.ID, rep.Status, rep.CreatedAt, rep.FilePath)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.Report, error) {
	var rep domain.Report
	var filePath sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,status,created_at,file_path FROM reports WHERE id=?`, id).
		Scan(&rep.ID, &rep.Status, &rep.CreatedAt, &filePath)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if filePath.Valid {
		rep.FilePath = &filePath.String
	}
	return rep, err
}

// MarkReportComplete publishes the artifact path and the Complete state in one
// statement. The status guard keeps the Running -> Complete transition
// monotonic.
func (r Repo) MarkReportComplete(ctx context.Context, id, filePath string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reports SET status=?, file_path=? WHERE id=? AND status=?`,
		domain.ReportComplete, filePath, id, domain.ReportRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkReportFailed(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reports SET status=? WHERE id=? AND status=?`,
		domain.ReportFailed, id, domain.ReportRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListReports(ctx context.Context) ([]domain.Report, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,status,created_at,file_path FROM reports ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Report
	for rows.Next() {
		var rep domain.Report
		var filePath sql.NullString
		if err := rows.Scan(&rep.ID, &rep.Status, &rep.CreatedAt, &filePath); err != nil {
			return nil, err
		}
		if filePath.Valid {
			rep.FilePath = &filePath.String
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, n int, evtType, reportID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if reportID != "" {
		clauses = append(clauses, "report_id=?")
		args = append(args, reportID)
	}
	if n <= 0 {
		n = 20
	}
	args = append(args, n)
	query := `SELECT id,ts,type,COALESCE(store_id,''),COALESCE(report_id,''),payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.StoreID, &e.ReportID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
