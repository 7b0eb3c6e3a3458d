package observability

import (
	"context"
	"time"

	"github.com/hazyhaar/textract/kit"
)

// Sized is implemented by endpoint requests that carry a document.
type Sized interface {
	InputSize() int64
	SourceName() string
}

// Measured is implemented by endpoint responses that carry extracted text.
type Measured interface {
	OutputChars() int
	DocFormat() string
}

// formatted requests know their format before extraction runs, which keeps
// the format label on failed calls.
type formatted interface {
	DocFormat() string
}

// Recorder turns endpoint calls into metric datapoints and audit entries.
// Either sink may be nil.
type Recorder struct {
	Metrics *MetricsManager
	Audit   *AuditLogger
	// Classify maps a non-nil endpoint error to StatusRejected or
	// StatusError. Nil treats every error as StatusError.
	Classify func(error) string
}

// Middleware returns a kit.Middleware recording every call it wraps. The
// operation label comes from kit.GetEndpoint.
func (r *Recorder) Middleware() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			r.Observe(ctx, req, resp, err, time.Since(start))
			return resp, err
		}
	}
}

// Observe records one finished call.
func (r *Recorder) Observe(ctx context.Context, req, resp any, err error, elapsed time.Duration) {
	if r == nil || (r.Metrics == nil && r.Audit == nil) {
		return
	}

	entry := &AuditEntry{
		Timestamp:  time.Now(),
		Operation:  kit.GetEndpoint(ctx),
		Transport:  kit.GetTransport(ctx),
		RequestID:  kit.GetRequestID(ctx),
		DurationMs: elapsed.Milliseconds(),
		Status:     StatusSuccess,
	}
	if s, ok := req.(Sized); ok {
		entry.InputBytes = s.InputSize()
		entry.Source = s.SourceName()
	}
	if err != nil {
		entry.Status = StatusError
		if r.Classify != nil {
			entry.Status = r.Classify(err)
		}
		entry.ErrorMessage = err.Error()
	} else if m, ok := resp.(Measured); ok {
		entry.OutputChars = m.OutputChars()
		entry.Format = m.DocFormat()
	}
	if f, ok := req.(formatted); ok && entry.Format == "" {
		entry.Format = f.DocFormat()
	}

	if r.Audit != nil {
		r.Audit.LogAsync(entry)
	}
	if r.Metrics == nil {
		return
	}

	labels := map[string]string{
		"operation": entry.Operation,
		"format":    entry.Format,
		"outcome":   entry.Status,
		"transport": entry.Transport,
	}
	r.Metrics.Record(&Metric{
		Name:      MetricExtractDurationMs,
		Timestamp: entry.Timestamp,
		Value:     float64(elapsed.Microseconds()) / 1000,
		Labels:    labels,
		Unit:      "milliseconds",
	})
	if entry.InputBytes > 0 {
		r.Metrics.Record(&Metric{
			Name:      MetricExtractInputBytes,
			Timestamp: entry.Timestamp,
			Value:     float64(entry.InputBytes),
			Labels:    labels,
			Unit:      "bytes",
		})
	}
	if err == nil {
		r.Metrics.Record(&Metric{
			Name:      MetricExtractChars,
			Timestamp: entry.Timestamp,
			Value:     float64(entry.OutputChars),
			Labels:    labels,
			Unit:      "chars",
		})
	}
}
