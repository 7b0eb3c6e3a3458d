package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/textract/idgen"
)

// Audit statuses.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected" // the caller sent something unusable
	StatusError    = "error"
)

// AuditEntry records one extraction call.
type AuditEntry struct {
	EntryID      string    `json:"entry_id"`
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"` // e.g. "extract_pdf", "textract_html"
	Transport    string    `json:"transport"` // "http", "mcp", "cli"
	RequestID    string    `json:"request_id,omitempty"`
	Format       string    `json:"format,omitempty"`
	Source       string    `json:"source,omitempty"` // uploaded filename, if any
	InputBytes   int64     `json:"input_bytes"`
	OutputChars  int       `json:"output_chars"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// AuditFilter controls query results from the audit trail.
type AuditFilter struct {
	Since     *time.Time
	Operation string
	Format    string
	Status    string
	Limit     int // default 100
}

// AuditLogger persists audit entries asynchronously.
type AuditLogger struct {
	db        *sql.DB
	newID     idgen.Generator
	ch        chan *AuditEntry
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewAuditLogger creates an async audit logger. Recommended bufferSize: 1000.
func NewAuditLogger(db *sql.DB, bufferSize int) *AuditLogger {
	a := &AuditLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *AuditEntry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go a.flushLoop()
	return a
}

// Log inserts an audit entry synchronously.
func (a *AuditLogger) Log(ctx context.Context, entry *AuditEntry) error {
	a.fillDefaults(entry)
	return a.insert(ctx, entry)
}

// LogAsync queues an entry for async persistence.
// Falls back to synchronous insert if the buffer is full.
func (a *AuditLogger) LogAsync(entry *AuditEntry) {
	a.fillDefaults(entry)
	select {
	case a.ch <- entry:
	default:
		slog.Warn("observability audit buffer full, sync fallback", "operation", entry.Operation)
		if err := a.insert(context.Background(), entry); err != nil {
			slog.Error("observability audit: sync fallback failed", "error", err)
		}
	}
}

// Query retrieves audit entries matching the filter, newest first.
func (a *AuditLogger) Query(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	q := `SELECT entry_id, timestamp, operation, transport, request_id, format,
		source, input_bytes, output_chars, duration_ms, status, error_message
		FROM extraction_audit WHERE 1=1`
	var args []any

	if f.Since != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.Unix())
	}
	if f.Operation != "" {
		q += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.Format != "" {
		q += " AND format = ?"
		args = append(args, f.Format)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var ts int64
		var requestID, format, source, errMsg sql.NullString
		var inputBytes, outputChars, durationMs sql.NullInt64

		if err := rows.Scan(
			&e.EntryID, &ts, &e.Operation, &e.Transport, &requestID, &format,
			&source, &inputBytes, &outputChars, &durationMs, &e.Status, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.RequestID = requestID.String
		e.Format = format.String
		e.Source = source.String
		e.ErrorMessage = errMsg.String
		e.InputBytes = inputBytes.Int64
		e.OutputChars = int(outputChars.Int64)
		e.DurationMs = durationMs.Int64
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close drains the buffer and stops the flush goroutine. Safe to call more
// than once.
func (a *AuditLogger) Close() error {
	a.closeOnce.Do(func() {
		close(a.stop)
		<-a.done
	})
	return nil
}

func (a *AuditLogger) fillDefaults(e *AuditEntry) {
	if e.EntryID == "" {
		e.EntryID = a.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusSuccess
		}
	}
}

const insertAudit = `INSERT INTO extraction_audit
	(entry_id, timestamp, operation, transport, request_id, format,
	 source, input_bytes, output_chars, duration_ms, status, error_message)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`

func auditArgs(e *AuditEntry) []any {
	return []any{
		e.EntryID, e.Timestamp.Unix(), e.Operation, e.Transport, e.RequestID, e.Format,
		e.Source, e.InputBytes, e.OutputChars, e.DurationMs, e.Status, e.ErrorMessage,
	}
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	batch := make([]*AuditEntry, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := runTx(ctx, a.db, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, insertAudit)
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			defer stmt.Close()
			for _, e := range batch {
				if _, err := stmt.ExecContext(ctx, auditArgs(e)...); err != nil {
					return fmt.Errorf("insert %s: %w", e.EntryID, err)
				}
			}
			return nil
		})
		if err != nil {
			slog.Error("observability audit: flush", "error", err, "dropped", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stop:
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (a *AuditLogger) insert(ctx context.Context, e *AuditEntry) error {
	_, err := a.db.ExecContext(ctx, insertAudit, auditArgs(e)...)
	return err
}
