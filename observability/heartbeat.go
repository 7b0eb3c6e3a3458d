package observability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// RuntimeMetrics captures Go process health at a point in time.
type RuntimeMetrics struct {
	GoroutinesCount int     `json:"goroutines_count"`
	MemoryAllocMB   float64 `json:"memory_alloc_mb"`
	MemorySysMB     float64 `json:"memory_sys_mb"`
	GCCount         uint32  `json:"gc_count"`
}

// CollectRuntimeMetrics reads current Go runtime stats.
func CollectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(mem.Alloc) / 1024 / 1024,
		MemorySysMB:     float64(mem.Sys) / 1024 / 1024,
		GCCount:         mem.NumGC,
	}
}

// HeartbeatWriter writes periodic liveness rows to service_heartbeats.
type HeartbeatWriter struct {
	db       *sql.DB
	service  string
	hostname string
	pid      int
	interval time.Duration
}

// NewHeartbeatWriter creates a writer. Recommended interval: 15s.
func NewHeartbeatWriter(db *sql.DB, service string, interval time.Duration) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HeartbeatWriter{
		db:       db,
		service:  service,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
	}
}

// WriteHeartbeat writes a single heartbeat row with current runtime metrics.
func (hw *HeartbeatWriter) WriteHeartbeat(ctx context.Context) error {
	m := CollectRuntimeMetrics()
	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO service_heartbeats (
			service_name, hostname, pid, timestamp,
			goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		) VALUES (?,?,?,?,?,?,?,?)`,
		hw.service, hw.hostname, hw.pid, time.Now().Unix(),
		m.GoroutinesCount, m.MemoryAllocMB, m.MemorySysMB, m.GCCount)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// Run writes one heartbeat immediately, then one per interval until ctx is
// done. Write failures are logged and do not stop the loop.
func (hw *HeartbeatWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()

	for {
		if err := hw.WriteHeartbeat(ctx); err != nil && ctx.Err() == nil {
			slog.Error("heartbeat write failed", "error", err, "service", hw.service)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// HeartbeatStatus is the latest heartbeat for a service with a staleness
// verdict.
type HeartbeatStatus struct {
	Service    string         `json:"service"`
	Hostname   string         `json:"hostname"`
	PID        int            `json:"pid"`
	Timestamp  time.Time      `json:"timestamp"`
	Runtime    RuntimeMetrics `json:"runtime"`
	Alive      bool           `json:"alive"`
	StaleSince *time.Duration `json:"stale_since,omitempty"`
}

// LatestHeartbeat returns the most recent heartbeat for the service.
// stalenessThreshold is typically three heartbeat intervals. Returns nil, nil
// if no heartbeat has been recorded yet.
func LatestHeartbeat(ctx context.Context, db *sql.DB, service string, stalenessThreshold time.Duration) (*HeartbeatStatus, error) {
	row := db.QueryRowContext(ctx, `
		SELECT service_name, hostname, pid, timestamp,
		       goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		FROM service_heartbeats
		WHERE service_name = ?
		ORDER BY timestamp DESC LIMIT 1`, service)

	var hs HeartbeatStatus
	var ts int64
	// Runtime columns are nullable; a NULL reads as zero.
	var goroutines, gcCount sql.NullInt64
	var allocMB, sysMB sql.NullFloat64
	err := row.Scan(&hs.Service, &hs.Hostname, &hs.PID, &ts,
		&goroutines, &allocMB, &sysMB, &gcCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}
	hs.Runtime = RuntimeMetrics{
		GoroutinesCount: int(goroutines.Int64),
		MemoryAllocMB:   allocMB.Float64,
		MemorySysMB:     sysMB.Float64,
		GCCount:         uint32(gcCount.Int64),
	}

	hs.Timestamp = time.Unix(ts, 0)
	age := time.Since(hs.Timestamp)
	if age <= stalenessThreshold {
		hs.Alive = true
	} else {
		stale := age - stalenessThreshold
		hs.StaleSince = &stale
	}
	return &hs, nil
}
