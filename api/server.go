// Package api is the HTTP transport of textract: a chi router exposing the
// extraction endpoints, service metadata, observability queries and an MCP
// endpoint, behind the shield middleware stack.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/textract/docpipe"
	"github.com/hazyhaar/textract/kit"
	"github.com/hazyhaar/textract/observability"
	"github.com/hazyhaar/textract/shield"
)

// ServiceName is reported by /health and the MCP implementation.
const ServiceName = "textract"

// Observability bundles the optional SQLite-backed sinks.
type Observability struct {
	DB      *sql.DB
	Metrics *observability.MetricsManager
	Audit   *observability.AuditLogger
}

// OpenObservability opens (or creates) the observability database at path
// and starts its metrics and audit writers.
func OpenObservability(path string) (*Observability, error) {
	db, err := observability.Open(path)
	if err != nil {
		return nil, err
	}
	return &Observability{
		DB:      db,
		Metrics: observability.NewMetricsManager(db, 100, 5*time.Second),
		Audit:   observability.NewAuditLogger(db, 1000),
	}, nil
}

// Close flushes both writers, then closes the database.
func (o *Observability) Close() error {
	return errors.Join(o.Metrics.Close(), o.Audit.Close(), o.DB.Close())
}

// HeartbeatInterval is how often a serving process records a liveness row.
const HeartbeatInterval = 15 * time.Second

// RunHeartbeat writes service heartbeats until ctx is done.
func (o *Observability) RunHeartbeat(ctx context.Context) error {
	return observability.NewHeartbeatWriter(o.DB, ServiceName, HeartbeatInterval).Run(ctx)
}

// RunRetention applies cfg at start and then daily until ctx is done.
func (o *Observability) RunRetention(ctx context.Context, cfg observability.RetentionConfig) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := observability.Cleanup(ctx, o.DB, cfg)
		if err != nil && ctx.Err() == nil {
			slog.Error("observability retention failed", "error", err)
		} else if n > 0 {
			slog.Info("observability retention", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Observability) recorder() *observability.Recorder {
	return &observability.Recorder{
		Metrics:  o.Metrics,
		Audit:    o.Audit,
		Classify: classify,
	}
}

func classify(err error) string {
	if docpipe.IsClientError(err) {
		return observability.StatusRejected
	}
	return observability.StatusError
}

// Server serves the extraction pipeline over HTTP and MCP.
type Server struct {
	cfg     *Config
	pipe    *docpipe.Pipeline
	obs     *Observability // nil when disabled
	logger  *slog.Logger
	mw      []kit.Middleware
	mcp     *mcp.Server
	started time.Time
}

// New creates a Server. obs may be nil.
func New(cfg *Config, pipe *docpipe.Pipeline, obs *Observability, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		pipe:    pipe,
		obs:     obs,
		logger:  logger,
		started: time.Now(),
	}
	s.mw = []kit.Middleware{kit.Logging(logger, "")}
	if obs != nil {
		s.mw = append(s.mw, obs.recorder().Middleware())
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServiceName, Version: cfg.Version}, nil)
	pipe.RegisterMCP(s.mcp, s.mw...)
	return s
}

// MCP returns the MCP server carrying the extraction tools.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// endpoint wraps ep with the server's middleware chain.
func (s *Server) endpoint(ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(s.mw...)(ep)
}

// Handler builds the router. Background work started for it (rate limiter
// janitor) stops when ctx is done.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack(ctx, shield.StackConfig{
		MaxBodyBytes:   s.cfg.MaxUploadBytes + multipartSlack,
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		RatePerSecond:  max(s.cfg.RateLimit.RequestsPerSecond, 0),
		Burst:          s.cfg.RateLimit.Burst,
		APIKeyHash:     s.cfg.APIKeyHash,
		Public:         []string{"/health"},
	}) {
		r.Use(mw)
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Get("/api/v1/formats", s.handleFormats)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/api/v1/metrics", s.handleMetrics)
		r.Get("/api/v1/metrics/summary", s.handleMetricsSummary)
		r.Get("/api/v1/audit", s.handleAudit)

		r.Route("/api/v1/extract", func(r chi.Router) {
			r.Post("/", s.handleContent)
			r.Post("/html", s.handleHTML)
			r.Post("/pdf", s.handleUpload("extract_pdf", docpipe.FormatPDF))
			r.Post("/docx", s.handleUpload("extract_docx", docpipe.FormatDocx))
			r.Post("/file", s.handleUpload("extract_file", ""))
			r.Post("/markdown", s.handleMarkdown)
		})
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	r.Handle("/mcp", mcpHandler)
	r.Handle("/mcp/*", mcpHandler)

	return r
}

// multipartSlack is the allowance for multipart framing on top of the file
// size limit.
const multipartSlack = 1 << 20
