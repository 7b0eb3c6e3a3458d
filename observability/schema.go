package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Schema contains the complete DDL for the observability tables.
const Schema = `
-- Metrics Timeseries
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp
    ON metrics_timeseries(timestamp DESC);

-- Extraction Audit
CREATE TABLE IF NOT EXISTS extraction_audit (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    operation TEXT NOT NULL,
    transport TEXT NOT NULL,
    request_id TEXT,
    format TEXT,
    source TEXT,
    input_bytes INTEGER,
    output_chars INTEGER,
    duration_ms INTEGER,
    status TEXT NOT NULL,
    error_message TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON extraction_audit(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_operation ON extraction_audit(operation, status);

-- Service Heartbeats
CREATE TABLE IF NOT EXISTS service_heartbeats (
    heartbeat_id TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    service_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    memory_sys_mb REAL,
    gc_count INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_service_time
    ON service_heartbeats(service_name, timestamp DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	MetricsDays    int `yaml:"metrics_days"`
	AuditDays      int `yaml:"audit_days"`
	HeartbeatsDays int `yaml:"heartbeats_days"`
}

// Cleanup deletes records older than the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) (int64, error) {
	now := time.Now().Unix()

	targets := []struct {
		query string
		days  int
	}{
		{"DELETE FROM metrics_timeseries WHERE timestamp < ?", cfg.MetricsDays},
		{"DELETE FROM extraction_audit WHERE timestamp < ?", cfg.AuditDays},
		{"DELETE FROM service_heartbeats WHERE timestamp < ?", cfg.HeartbeatsDays},
	}

	var total int64
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days*86400)
		res, err := db.ExecContext(ctx, t.query, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
