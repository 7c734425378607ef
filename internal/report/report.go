// Package report owns the asynchronous report job lifecycle: trigger, compute
// metrics for every store, publish the CSV artifact, and track completion.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"storepulse/internal/domain"
	"storepulse/internal/engine"
	"storepulse/internal/obs"
)

// Header is the fixed artifact column order.
var Header = []string{
	"store_id",
	"uptime_last_hour",
	"uptime_last_day",
	"uptime_last_week",
	"downtime_last_hour",
	"downtime_last_day",
	"downtime_last_week",
}

// Generator runs report jobs. Jobs move Running -> Complete or
// Running -> Failed and never back.
type Generator struct {
	Engine  engine.Engine
	Dir     string
	Metrics *obs.Metrics
	Log     *slog.Logger

	wg sync.WaitGroup
}

func New(e engine.Engine, dir string, m *obs.Metrics) *Generator {
	return &Generator{Engine: e, Dir: dir, Metrics: m, Log: slog.Default()}
}

// Trigger allocates a job id, persists the Running record, and starts
// generation in the background. The caller gets the id immediately and never
// observes the generation outcome through this call.
func (g *Generator) Trigger(ctx context.Context) (string, error) {
	id := uuid.NewString()
	rep := domain.Report{
		ID:        id,
		Status:    domain.ReportRunning,
		CreatedAt: g.Engine.Now().UTC().Format(time.RFC3339),
	}
	if err := g.Engine.Repo.InsertReport(ctx, rep); err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	_ = g.Engine.Events.Append(ctx, "report.triggered", "", id, nil)
	if g.Metrics != nil {
		g.Metrics.ReportsTriggered.Inc()
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		// Detached from the triggering request's context on purpose.
		g.run(context.Background(), id)
	}()
	return id, nil
}

// TriggerAndWait runs one job to completion and returns its final record.
// Callers that tear down the database on return (the CLI) must use this
// instead of Trigger, or the background goroutine loses its connection
// mid-generation and the job is stranded in Running.
func (g *Generator) TriggerAndWait(ctx context.Context) (domain.Report, error) {
	id, err := g.Trigger(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	g.Wait()
	return g.Status(ctx, id)
}

// Wait blocks until all in-flight jobs finish. Used on shutdown and in tests.
func (g *Generator) Wait() {
	g.wg.Wait()
}

// Status is a pure read of the job record. Unknown ids surface as
// repo.ErrNotFound, never as a state.
func (g *Generator) Status(ctx context.Context, id string) (domain.Report, error) {
	return g.Engine.Repo.GetReport(ctx, id)
}

func (g *Generator) run(ctx context.Context, id string) {
	log := g.logger().With("report_id", id)
	started := time.Now()
	err := g.generate(ctx, id, log)
	if g.Metrics != nil {
		g.Metrics.GenerationSeconds.Observe(time.Since(started).Seconds())
	}
	if err == nil {
		return
	}
	log.Error("report generation failed", "err", err)
	if err := g.Engine.Repo.MarkReportFailed(ctx, id); err != nil {
		log.Error("mark report failed", "err", err)
	}
	_ = g.Engine.Events.Append(ctx, "report.failed", "", id, map[string]any{"error": err.Error()})
	if g.Metrics != nil {
		g.Metrics.ReportsFailed.Inc()
	}
}

func (g *Generator) generate(ctx context.Context, id string, log *slog.Logger) error {
	ref, err := g.Engine.ReferenceTime(ctx)
	if err != nil {
		return fmt.Errorf("reference time: %w", err)
	}
	storeIDs, err := g.Engine.Repo.DistinctStoreIDs(ctx)
	if err != nil {
		return fmt.Errorf("enumerate stores: %w", err)
	}
	log.Info("report generation started", "stores", len(storeIDs), "reference_time", ref)

	rows := make([]domain.StoreMetrics, 0, len(storeIDs))
	for _, storeID := range storeIDs {
		m, err := g.Engine.ComputeStoreMetrics(ctx, storeID, ref)
		if err != nil {
			// One bad store must not sink the whole report.
			log.Warn("store skipped", "store_id", storeID, "err", err)
			_ = g.Engine.Events.Append(ctx, "store.skipped", storeID, id, map[string]any{"error": err.Error()})
			if g.Metrics != nil {
				g.Metrics.StoresSkipped.Inc()
			}
			continue
		}
		rows = append(rows, m)
		if g.Metrics != nil {
			g.Metrics.StoresProcessed.Inc()
		}
	}

	path, err := g.writeArtifact(id, rows)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := g.Engine.Repo.MarkReportComplete(ctx, id, path); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	_ = g.Engine.Events.Append(ctx, "report.completed", "", id, map[string]any{"rows": len(rows)})
	if g.Metrics != nil {
		g.Metrics.ReportsCompleted.Inc()
	}
	log.Info("report generation completed", "rows", len(rows), "artifact", path)
	return nil
}

// writeArtifact writes the CSV to a temp file and renames it into place, so a
// reader can never open a partially written artifact.
func (g *Generator) writeArtifact(id string, rows []domain.StoreMetrics) (string, error) {
	if err := os.MkdirAll(g.Dir, 0o755); err != nil {
		return "", err
	}
	final := filepath.Join(g.Dir, id+".csv")
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return "", err
	}
	for _, m := range rows {
		record := []string{
			m.StoreID,
			fmtFloat(m.UptimeLastHour),
			fmtFloat(m.UptimeLastDay),
			fmtFloat(m.UptimeLastWeek),
			fmtFloat(m.DowntimeLastHour),
			fmtFloat(m.DowntimeLastDay),
			fmtFloat(m.DowntimeLastWeek),
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", err
	}
	return final, nil
}

func (g *Generator) logger() *slog.Logger {
	if g.Log != nil {
		return g.Log
	}
	return slog.Default()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
