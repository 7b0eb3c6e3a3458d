package observability

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/textract/kit"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesAllTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"metrics_timeseries", "extraction_audit", "service_heartbeats"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestOpen_File(t *testing.T) {
	// WHAT: Open creates missing parent directories and runs in WAL mode.
	// WHY: obs_db usually points into a fresh data directory.
	path := filepath.Join(t.TempDir(), "nested", "obs.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	// Reopening applies the schema again without error.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db2.Close()
}

func TestIsBusy(t *testing.T) {
	cases := map[string]bool{
		"SQLITE_BUSY":              true,
		"database is locked":       true,
		"database table is locked": true,
		"no such table: x":         false,
	}
	for msg, want := range cases {
		if got := isBusy(errors.New(msg)); got != want {
			t.Errorf("isBusy(%q) = %v", msg, got)
		}
	}
	if isBusy(nil) {
		t.Error("isBusy(nil) = true")
	}
}

func TestRunTx_Rollback(t *testing.T) {
	db := setupObsDB(t)
	boom := errors.New("boom")
	err := runTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO metrics_timeseries (metric_name, timestamp, value) VALUES ('x', 1, 1)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 0 {
		t.Errorf("rows after rollback: %d", n)
	}
}

// --- MetricsManager ---

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	mm.Record(&Metric{
		Name:      MetricExtractDurationMs,
		Timestamp: time.Now(),
		Value:     42.5,
		Unit:      "milliseconds",
		Labels:    map[string]string{"format": "pdf"},
	})
	mm.Record(&Metric{Name: MetricExtractChars, Value: 10, Unit: "chars"})
	mm.Flush()

	ctx := context.Background()
	metrics, err := mm.Query(ctx, MetricExtractDurationMs, nil, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("duration count: got %d", len(metrics))
	}
	if metrics[0].Value != 42.5 {
		t.Fatalf("value: got %f", metrics[0].Value)
	}
	if metrics[0].Labels["format"] != "pdf" {
		t.Fatalf("labels: got %v", metrics[0].Labels)
	}

	all, err := mm.Query(ctx, "", nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all metrics count: got %d", len(all))
	}
}

func TestMetricsManager_CloseFlushes(t *testing.T) {
	// WHAT: Close writes whatever is still buffered.
	// WHY: serve shuts down with a flush; datapoints must not be lost.
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	mm.Record(&Metric{Name: "m", Value: 1})
	mm.Close()
	mm.Close()

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 1 {
		t.Fatalf("rows after close: %d", n)
	}
}

func TestMetricsManager_BufferFullFlushes(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.Record(&Metric{Name: "m", Value: 1})
	mm.Record(&Metric{Name: "m", Value: 2})

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 2 {
		t.Fatalf("rows after full buffer: %d", n)
	}
}

func TestMetricsManager_QueryWithTimeRange(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	now := time.Now()
	mm.Record(&Metric{Name: "m1", Timestamp: now.Add(-2 * time.Hour), Value: 1, Unit: "x"})
	mm.Record(&Metric{Name: "m1", Timestamp: now, Value: 2, Unit: "x"})
	mm.Flush()

	start := now.Add(-time.Hour)
	metrics, err := mm.Query(context.Background(), "m1", &start, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 || metrics[0].Value != 2 {
		t.Fatalf("time-filtered: got %+v", metrics)
	}
}

func TestMetricsManager_Summarize(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	pdfOK := map[string]string{"format": "pdf", "outcome": StatusSuccess}
	mm.Record(&Metric{Name: MetricExtractDurationMs, Value: 10, Labels: pdfOK})
	mm.Record(&Metric{Name: MetricExtractDurationMs, Value: 30, Labels: pdfOK})
	mm.Record(&Metric{Name: MetricExtractDurationMs, Value: 5, Labels: map[string]string{"format": "html", "outcome": StatusRejected}})
	mm.Flush()

	sum, err := mm.Summarize(context.Background(), MetricExtractDurationMs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum) != 2 {
		t.Fatalf("groups: got %d (%+v)", len(sum), sum)
	}
	// Ordered by format: html first.
	if sum[0].Format != "html" || sum[0].Count != 1 || sum[0].Outcome != StatusRejected {
		t.Errorf("html group = %+v", sum[0])
	}
	if sum[1].Format != "pdf" || sum[1].Count != 2 || sum[1].Avg != 20 || sum[1].Max != 30 {
		t.Errorf("pdf group = %+v", sum[1])
	}
}

// --- Cleanup ---

func TestCleanup_Retention(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()
	old := time.Now().Add(-40 * 24 * time.Hour).Unix()
	db.Exec(`INSERT INTO metrics_timeseries (metric_name, timestamp, value) VALUES ('old', ?, 1), ('new', ?, 1)`, old, time.Now().Unix())
	db.Exec(`INSERT INTO extraction_audit (entry_id, timestamp, operation, transport, status) VALUES ('a1', ?, 'extract_pdf', 'http', 'success')`, old)

	n, err := Cleanup(ctx, db, RetentionConfig{MetricsDays: 30, AuditDays: 30})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted: got %d, want 2", n)
	}
	var left int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&left)
	if left != 1 {
		t.Fatalf("metrics left: %d", left)
	}
}

func TestCleanup_SkipsZeroDays(t *testing.T) {
	db := setupObsDB(t)
	old := time.Now().Add(-400 * 24 * time.Hour).Unix()
	db.Exec(`INSERT INTO metrics_timeseries (metric_name, timestamp, value) VALUES ('old', ?, 1)`, old)

	n, err := Cleanup(context.Background(), db, RetentionConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("deleted with zero retention: %d", n)
	}
}

// --- Heartbeats ---

func TestCollectRuntimeMetrics(t *testing.T) {
	m := CollectRuntimeMetrics()
	if m.GoroutinesCount < 1 {
		t.Fatalf("goroutines: %d", m.GoroutinesCount)
	}
	if m.MemoryAllocMB <= 0 {
		t.Fatalf("memory alloc: %f", m.MemoryAllocMB)
	}
}

func TestHeartbeat_WriteAndLatest(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()

	hs, err := LatestHeartbeat(ctx, db, "textract", time.Minute)
	if err != nil || hs != nil {
		t.Fatalf("before any beat: %+v, %v", hs, err)
	}

	hw := NewHeartbeatWriter(db, "textract", time.Hour)
	if err := hw.WriteHeartbeat(ctx); err != nil {
		t.Fatal(err)
	}
	hs, err = LatestHeartbeat(ctx, db, "textract", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if hs == nil || !hs.Alive || hs.PID == 0 || hs.Runtime.GoroutinesCount < 1 {
		t.Fatalf("latest = %+v", hs)
	}
}

func TestHeartbeat_Stale(t *testing.T) {
	db := setupObsDB(t)
	db.Exec(`INSERT INTO service_heartbeats (service_name, hostname, pid, timestamp) VALUES ('textract', 'h', 1, ?)`,
		time.Now().Add(-time.Hour).Unix())

	hs, err := LatestHeartbeat(context.Background(), db, "textract", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if hs.Alive || hs.StaleSince == nil {
		t.Fatalf("expected stale heartbeat, got %+v", hs)
	}
	if hs.Runtime != (RuntimeMetrics{}) {
		t.Errorf("runtime from NULL columns = %+v, want zero", hs.Runtime)
	}
}

func TestHeartbeat_RunStopsOnCancel(t *testing.T) {
	db := setupObsDB(t)
	hw := NewHeartbeatWriter(db, "textract", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hw.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM service_heartbeats").Scan(&n)
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no heartbeat written")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

// --- Audit ---

func TestAuditLogger_LogAndQuery(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 10)
	defer al.Close()
	ctx := context.Background()

	if err := al.Log(ctx, &AuditEntry{Operation: "extract_pdf", Format: "pdf", Source: "a.pdf", InputBytes: 100, OutputChars: 12}); err != nil {
		t.Fatal(err)
	}
	if err := al.Log(ctx, &AuditEntry{Operation: "extract_pdf", ErrorMessage: "PDF extraction failed: bad"}); err != nil {
		t.Fatal(err)
	}

	all, err := al.Query(ctx, AuditFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("entries: %d", len(all))
	}

	failed, err := al.Query(ctx, AuditFilter{Status: StatusError})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ErrorMessage != "PDF extraction failed: bad" || failed[0].Transport != "http" {
		t.Fatalf("failed = %+v", failed)
	}

	ok, err := al.Query(ctx, AuditFilter{Format: "pdf", Status: StatusSuccess})
	if err != nil {
		t.Fatal(err)
	}
	if len(ok) != 1 || ok[0].Source != "a.pdf" || ok[0].OutputChars != 12 || ok[0].InputBytes != 100 {
		t.Fatalf("ok = %+v", ok)
	}
}

func TestAuditLogger_LogAsync(t *testing.T) {
	// WHAT: Async entries are persisted by Close.
	// WHY: The extraction path never waits on the audit store.
	db := setupObsDB(t)
	al := NewAuditLogger(db, 10)
	al.LogAsync(&AuditEntry{Operation: "textract_html", Transport: "mcp"})
	al.Close()

	var n int
	db.QueryRow("SELECT COUNT(*) FROM extraction_audit WHERE transport = 'mcp'").Scan(&n)
	if n != 1 {
		t.Fatalf("async entries: %d", n)
	}
}

// --- Recorder ---

type sizedReq struct{}

func (sizedReq) InputSize() int64   { return 2048 }
func (sizedReq) SourceName() string { return "doc.pdf" }
func (sizedReq) DocFormat() string  { return "pdf" }

type measuredResp struct{}

func (measuredResp) OutputChars() int  { return 7 }
func (measuredResp) DocFormat() string { return "pdf" }

func TestRecorder_Middleware(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	al := NewAuditLogger(db, 10)
	rejected := errors.New("File must be a PDF document (.pdf)")
	rec := &Recorder{
		Metrics: mm,
		Audit:   al,
		Classify: func(err error) string {
			if errors.Is(err, rejected) {
				return StatusRejected
			}
			return StatusError
		},
	}

	ok := rec.Middleware()(func(context.Context, any) (any, error) { return measuredResp{}, nil })
	bad := rec.Middleware()(func(context.Context, any) (any, error) { return nil, rejected })

	ctx := kit.WithEndpoint(kit.WithRequestID(context.Background(), "req_1"), "extract_pdf")
	if _, err := ok(ctx, sizedReq{}); err != nil {
		t.Fatal(err)
	}
	if _, err := bad(ctx, sizedReq{}); !errors.Is(err, rejected) {
		t.Fatalf("error not passed through: %v", err)
	}
	mm.Close()
	al.Close()

	q := NewMetricsManager(db, 100, time.Hour)
	defer q.Close()
	chars, err := q.Query(context.Background(), MetricExtractChars, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chars) != 1 || chars[0].Value != 7 || chars[0].Labels["operation"] != "extract_pdf" {
		t.Fatalf("chars metrics = %+v", chars)
	}
	durations, _ := q.Query(context.Background(), MetricExtractDurationMs, nil, nil, 0)
	if len(durations) != 2 {
		t.Fatalf("duration metrics: %d", len(durations))
	}
	sizes, _ := q.Query(context.Background(), MetricExtractInputBytes, nil, nil, 0)
	if len(sizes) != 2 || sizes[0].Value != 2048 {
		t.Fatalf("input byte metrics = %+v", sizes)
	}

	var status, format, source, reqID string
	err = db.QueryRow(`SELECT status, format, source, request_id FROM extraction_audit WHERE status = 'rejected'`).
		Scan(&status, &format, &source, &reqID)
	if err != nil {
		t.Fatal(err)
	}
	if format != "pdf" || source != "doc.pdf" || reqID != "req_1" {
		t.Errorf("rejected entry: format=%q source=%q request_id=%q", format, source, reqID)
	}
}

func TestRecorder_NilSinks(t *testing.T) {
	var rec *Recorder
	rec.Observe(context.Background(), nil, nil, nil, time.Millisecond)
	(&Recorder{}).Observe(context.Background(), nil, nil, nil, time.Millisecond)
}
