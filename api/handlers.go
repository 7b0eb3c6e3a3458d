package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/textract/docpipe"
	"github.com/hazyhaar/textract/kit"
	"github.com/hazyhaar/textract/observability"
)

// --- endpoint request/response types ---

// docRequest is an uploaded document. Format is the format the route
// expects; empty means detect from Filename.
type docRequest struct {
	Filename string
	Data     []byte
	Format   docpipe.Format
}

func (r *docRequest) InputSize() int64   { return int64(len(r.Data)) }
func (r *docRequest) SourceName() string { return r.Filename }
func (r *docRequest) DocFormat() string  { return string(r.Format) }

// textRequest is inline source text of a known format.
type textRequest struct {
	Source string
	Format docpipe.Format
}

func (r *textRequest) InputSize() int64   { return int64(len(r.Source)) }
func (r *textRequest) SourceName() string { return "" }
func (r *textRequest) DocFormat() string  { return string(r.Format) }

type textResponse struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
	format docpipe.Format
}

func (r *textResponse) OutputChars() int  { return r.Length }
func (r *textResponse) DocFormat() string { return string(r.format) }

type fileResponse struct {
	Text    string                     `json:"text"`
	Length  int                        `json:"length"`
	Format  docpipe.Format             `json:"format"`
	Title   string                     `json:"title,omitempty"`
	Quality *docpipe.ExtractionQuality `json:"quality,omitempty"`
}

func (r *fileResponse) OutputChars() int  { return r.Length }
func (r *fileResponse) DocFormat() string { return string(r.Format) }

type contentMetadata struct {
	Length      int    `json:"length"`
	ContentType string `json:"content_type"`
}

type contentResponse struct {
	ExtractedText string          `json:"extracted_text"`
	Title         *string         `json:"title"`
	Metadata      contentMetadata `json:"metadata"`
}

func (r *contentResponse) OutputChars() int  { return r.Metadata.Length }
func (r *contentResponse) DocFormat() string { return r.Metadata.ContentType }

type markdownResponse struct {
	Markdown string `json:"markdown"`
	Length   int    `json:"length"`
}

func (r *markdownResponse) OutputChars() int  { return r.Length }
func (r *markdownResponse) DocFormat() string { return "markdown" }

// --- endpoints ---

func (s *Server) extractUpload(ctx context.Context, req any) (any, error) {
	r := req.(*docRequest)
	var (
		res *docpipe.Result
		err error
	)
	switch r.Format {
	case docpipe.FormatPDF:
		if err := docpipe.CheckExtension(r.Filename, docpipe.FormatPDF, docpipe.PDFExtensions...); err != nil {
			return nil, err
		}
		res, err = s.pipe.ExtractPDF(ctx, r.Data)
	case docpipe.FormatDocx:
		if err := docpipe.CheckExtension(r.Filename, docpipe.FormatDocx, docpipe.DocxExtensions...); err != nil {
			return nil, err
		}
		res, err = s.pipe.ExtractDocx(ctx, r.Data)
	default:
		res, err = s.pipe.Extract(ctx, r.Filename, r.Data)
		if err != nil {
			return nil, err
		}
		return &fileResponse{
			Text:    res.Text,
			Length:  res.Length,
			Format:  res.Format,
			Title:   res.Title,
			Quality: res.Quality,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &textResponse{Text: res.Text, Length: res.Length, format: res.Format}, nil
}

func (s *Server) extractHTML(ctx context.Context, req any) (any, error) {
	res, err := s.pipe.ExtractHTML(ctx, req.(*textRequest).Source)
	if err != nil {
		return nil, err
	}
	return &textResponse{Text: res.Text, Length: res.Length, format: res.Format}, nil
}

func (s *Server) extractContent(ctx context.Context, req any) (any, error) {
	r := req.(*textRequest)
	var (
		res *docpipe.Result
		err error
	)
	contentType := "html"
	if r.Format == docpipe.FormatTXT {
		contentType = "text"
		res, err = s.pipe.ExtractText(ctx, r.Source)
	} else {
		res, err = s.pipe.ExtractHTML(ctx, r.Source)
	}
	if err != nil {
		return nil, err
	}
	out := &contentResponse{
		ExtractedText: res.Text,
		Metadata:      contentMetadata{Length: res.Length, ContentType: contentType},
	}
	if res.Title != "" {
		out.Title = &res.Title
	}
	return out, nil
}

func (s *Server) convertMarkdown(ctx context.Context, req any) (any, error) {
	md, err := s.pipe.ToMarkdown(ctx, req.(*textRequest).Source)
	if err != nil {
		return nil, err
	}
	return &markdownResponse{Markdown: md, Length: utf8.RuneCountInString(md)}, nil
}

// serve runs ep under the operation name and writes its JSON response.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, name string, ep kit.Endpoint, req any) {
	ctx := kit.WithEndpoint(r.Context(), name)
	resp, err := s.endpoint(ep)(ctx, req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- extraction handlers ---

func (s *Server) handleHTML(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HTML *string `json:"html"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeFailure(w, r, err)
		return
	}
	if body.HTML == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "field required: html")
		return
	}
	s.serve(w, r, "extract_html", s.extractHTML, &textRequest{Source: *body.HTML, Format: docpipe.FormatHTML})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content     *string `json:"content"`
		ContentType string  `json:"content_type"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeFailure(w, r, err)
		return
	}
	if body.Content == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "field required: content")
		return
	}

	req := &textRequest{Source: *body.Content}
	switch strings.ToLower(body.ContentType) {
	case "", "html":
		req.Format = docpipe.FormatHTML
	case "text":
		req.Format = docpipe.FormatTXT
	default:
		writeFailure(w, r, badRequest(fmt.Sprintf("unsupported content_type %q (supported: html, text)", body.ContentType)))
		return
	}
	s.serve(w, r, "extract_content", s.extractContent, req)
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HTML *string `json:"html"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeFailure(w, r, err)
		return
	}
	if body.HTML == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "field required: html")
		return
	}
	s.serve(w, r, "extract_markdown", s.convertMarkdown, &textRequest{Source: *body.HTML, Format: docpipe.FormatHTML})
}

// handleUpload serves a multipart upload in field "file". The extension
// check for format-specific routes runs before any parsing.
func (s *Server) handleUpload(name string, format docpipe.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, data, err := readUpload(r, s.cfg.MaxUploadBytes)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		s.serve(w, r, name, s.extractUpload, &docRequest{Filename: filename, Data: data, Format: format})
	}
}

// readUpload returns the name and bytes of the "file" part.
func readUpload(r *http.Request, limit int64) (string, []byte, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return "", nil, unprocessable("expected multipart/form-data with a file field")
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", nil, err
		}
		return "", nil, badRequest("invalid multipart form: " + err.Error())
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, unprocessable("field required: file")
		}
		return "", nil, badRequest("invalid file field: " + err.Error())
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", nil, &requestError{
			status: http.StatusRequestEntityTooLarge,
			msg:    fmt.Sprintf("file too large (max %d bytes)", limit),
		}
	}
	return hdr.Filename, data, nil
}

// --- metadata handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "textract API",
		"docs":    "/api/v1/formats",
		"health":  "/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   ServiceName,
		"version":   s.cfg.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"formats":    docpipe.SupportedFormats(),
		"extensions": docpipe.SupportedExtensions(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"service":        ServiceName,
		"version":        s.cfg.Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"runtime":        observability.CollectRuntimeMetrics(),
		"observability":  s.obs != nil,
	}
	if s.obs != nil {
		hb, err := observability.LatestHeartbeat(r.Context(), s.obs.DB, ServiceName, 3*HeartbeatInterval)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		if hb != nil {
			out["heartbeat"] = hb
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- observability handlers ---

func (s *Server) requireObs(w http.ResponseWriter) bool {
	if s.obs == nil {
		writeDetail(w, http.StatusServiceUnavailable, "observability disabled (set obs_db)")
		return false
	}
	return true
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.requireObs(w) {
		return
	}
	since, limit, err := queryWindow(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	metrics, err := s.obs.Metrics.Query(r.Context(), r.URL.Query().Get("name"), since, nil, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": metrics})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireObs(w) {
		return
	}
	since, _, err := queryWindow(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = observability.MetricExtractDurationMs
	}
	summary, err := s.obs.Metrics.Summarize(r.Context(), name, since)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "summary": summary})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !s.requireObs(w) {
		return
	}
	since, limit, err := queryWindow(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	q := r.URL.Query()
	entries, err := s.obs.Audit.Query(r.Context(), observability.AuditFilter{
		Since:     since,
		Operation: q.Get("operation"),
		Format:    q.Get("format"),
		Status:    q.Get("status"),
		Limit:     limit,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// queryWindow parses ?since= (RFC 3339 time or a duration back from now,
// e.g. "1h") and ?limit= (default 100, max 1000).
func queryWindow(r *http.Request) (*time.Time, int, error) {
	q := r.URL.Query()
	var since *time.Time
	if v := q.Get("since"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t := time.Now().Add(-d)
			since = &t
		} else if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = &t
		} else {
			return nil, 0, badRequest(fmt.Sprintf("invalid since %q: want RFC 3339 time or duration", v))
		}
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, 0, badRequest(fmt.Sprintf("invalid limit %q", v))
		}
		limit = min(n, 1000)
	}
	return since, limit, nil
}
