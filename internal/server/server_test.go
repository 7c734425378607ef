package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storepulse/internal/config"
	"storepulse/internal/db"
	"storepulse/internal/domain"
	"storepulse/internal/engine"
	"storepulse/internal/migrate"
	"storepulse/internal/obs"
	"storepulse/internal/report"
	"storepulse/internal/server"
)

type testAPI struct {
	Server *httptest.Server
	Gen    *report.Generator
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2023, 1, 25, 12, 0, 0, 0, time.UTC) }
	gen := report.New(eng, t.TempDir(), obs.New())
	handler, err := server.New(server.Config{Generator: gen, Metrics: gen.Metrics})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return testAPI{Server: srv, Gen: gen}
}

func (a testAPI) seedStore(t *testing.T, storeID string) {
	t.Helper()
	ctx := context.Background()
	tx, err := a.Gen.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = a.Gen.Engine.Repo.InsertObservationsTx(ctx, tx, []domain.StatusObservation{
		{StoreID: storeID, TimestampUTC: time.Date(2023, 1, 25, 11, 30, 0, 0, time.UTC), Status: domain.StatusActive},
	})
	if err != nil {
		tx.Rollback()
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func (a testAPI) trigger(t *testing.T) string {
	t.Helper()
	resp, err := http.Post(a.Server.URL+"/v0/trigger_report", "application/json", nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("trigger status = %d, want 201", resp.StatusCode)
	}
	var body struct {
		ReportID string `json:"report_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ReportID == "" {
		t.Fatal("empty report_id")
	}
	return body.ReportID
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, err := http.Get(api.Server.URL + "/v0/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestTriggerThenDownload(t *testing.T) {
	api := newTestAPI(t)
	api.seedStore(t, "s1")

	id := api.trigger(t)
	api.Gen.Wait()

	resp, err := http.Get(api.Server.URL + "/v0/get_report?report_id=" + id)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get_report status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("Content-Type = %q, want text/csv", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.Contains(cd, "store_report_"+id+".csv") {
		t.Fatalf("Content-Disposition = %q, want the report filename", cd)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("artifact has %d lines, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "store_id,uptime_last_hour") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "s1,") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestGetReportUnknownID(t *testing.T) {
	api := newTestAPI(t)
	resp, err := http.Get(api.Server.URL + "/v0/get_report?report_id=nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "not_found" {
		t.Fatalf("error code = %q, want not_found", body.Error.Code)
	}
}

func TestGetReportMissingID(t *testing.T) {
	api := newTestAPI(t)
	resp, err := http.Get(api.Server.URL + "/v0/get_report")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetReportFailedJobReturnsStatusJSON(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	rep := domain.Report{ID: "r1", Status: domain.ReportRunning, CreatedAt: "2023-01-25T12:00:00Z"}
	if err := api.Gen.Engine.Repo.InsertReport(ctx, rep); err != nil {
		t.Fatal(err)
	}
	if err := api.Gen.Engine.Repo.MarkReportFailed(ctx, "r1"); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(api.Server.URL + "/v0/get_report?report_id=r1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (Failed is a state, not an error)", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != domain.ReportFailed {
		t.Fatalf("status = %q, want Failed", body.Status)
	}
}

func TestListReports(t *testing.T) {
	api := newTestAPI(t)
	api.seedStore(t, "s1")
	id := api.trigger(t)
	api.Gen.Wait()

	resp, err := http.Get(api.Server.URL + "/v0/reports")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var items []domain.Report
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("list = %+v, want the one triggered report", items)
	}
}

func TestOpenAPIDocumentStableAcrossRequests(t *testing.T) {
	api := newTestAPI(t)

	fetch := func() string {
		resp, err := http.Get(api.Server.URL + "/v0/openapi.json")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			t.Fatal(err)
		}
		return buf.String()
	}

	first := fetch()
	if !strings.Contains(first, "trigger_report") {
		t.Fatalf("document missing trigger_report path:\n%s", first)
	}
	if !json.Valid([]byte(first)) {
		t.Fatal("document is not valid JSON")
	}
	if second := fetch(); second != first {
		t.Fatal("document changed between requests")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedStore(t, "s1")
	api.trigger(t)
	api.Gen.Wait()

	resp, err := http.Get(api.Server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "storepulse_reports_triggered_total 1") {
		t.Fatalf("metrics missing triggered counter:\n%s", out)
	}
	if !strings.Contains(out, "storepulse_reports_completed_total 1") {
		t.Fatalf("metrics missing completed counter:\n%s", out)
	}
}
