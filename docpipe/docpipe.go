// CLAUDE:SUMMARY Core pipeline engine: format detection, extension checks and dispatch to the html/pdf/docx/txt extractors.
// Package docpipe turns HTML, PDF and Word documents into normalized plain text.
//
// Supported formats:
//   - .html .htm — HTML (x/net/html + goquery, script/style removed)
//   - .pdf       — PDF (pdfcpu validation, ledongthuc/pdf glyphs, layout analysis)
//   - .docx .doc — Word (nguyenthenguyen/docx → word/document.xml)
//   - .txt       — plain text (normalized as is)
//
// Every extractor passes its raw text through Normalize before returning.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	res, err := pipe.ExtractPDF(ctx, data)
//	fmt.Println(res.Length, "characters")
package docpipe

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Pipeline is the extraction engine. It holds only immutable configuration
// and is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	strict *bluemonday.Policy
	md     *converter.Converter
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		strict: newStrictPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extensions accepted by each single-format endpoint. Matching is a
// case-sensitive suffix test.
var (
	PDFExtensions  = []string{".pdf"}
	DocxExtensions = []string{".docx", ".doc"}
)

// Detect returns the document format based on file extension.
func (p *Pipeline) Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".docx", ".doc":
		return FormatDocx, nil
	case ".pdf":
		return FormatPDF, nil
	case ".txt", ".text":
		return FormatTXT, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", &FormatMismatchError{Filename: filename, Want: SupportedExtensions()}
	}
}

// CheckExtension verifies that filename ends with one of want.
func CheckExtension(filename string, format Format, want ...string) error {
	for _, ext := range want {
		if strings.HasSuffix(filename, ext) {
			return nil
		}
	}
	return &FormatMismatchError{Filename: filename, Format: format, Want: want}
}

// Extract detects the format from filename and runs the matching extractor
// on data. HTML uploads are decoded to UTF-8 from their declared or sniffed
// charset first.
func (p *Pipeline) Extract(ctx context.Context, filename string, data []byte) (*Result, error) {
	format, err := p.Detect(filename)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("extracting document", "filename", filename, "format", format, "bytes", len(data))

	switch format {
	case FormatPDF:
		return p.ExtractPDF(ctx, data)
	case FormatDocx:
		return p.ExtractDocx(ctx, data)
	case FormatHTML:
		src, err := decodeHTML(data, "")
		if err != nil {
			return nil, p.fail(FormatHTML, err)
		}
		return p.ExtractHTML(ctx, src)
	case FormatTXT:
		if err := p.precheck(ctx, FormatTXT, len(data)); err != nil {
			return nil, err
		}
		return newResult(FormatTXT, Normalize(string(data))), nil
	default:
		return nil, fmt.Errorf("no extractor for format: %s", format)
	}
}

// SupportedFormats returns all supported format names.
func SupportedFormats() []string {
	return []string{string(FormatHTML), string(FormatPDF), string(FormatDocx), string(FormatTXT)}
}

// SupportedExtensions returns every extension Detect recognizes.
func SupportedExtensions() []string {
	return []string{".html", ".htm", ".pdf", ".docx", ".doc", ".txt", ".text"}
}

func newResult(format Format, text string) *Result {
	return &Result{Format: format, Text: text, Length: utf8.RuneCountInString(text)}
}

// fail logs an extractor failure and wraps it as an ExtractionError.
func (p *Pipeline) fail(format Format, cause error) error {
	p.logger.Error("extraction failed", "format", format, "error", cause)
	return &ExtractionError{Format: format, Cause: cause}
}

// guard converts a panic raised by a third-party parser into an
// ExtractionError stored in *errp.
func (p *Pipeline) guard(format Format, errp *error) {
	if r := recover(); r != nil {
		*errp = p.fail(format, fmt.Errorf("parser panic: %v", r))
	}
}

// precheck rejects cancelled contexts and oversized inputs before parsing.
func (p *Pipeline) precheck(ctx context.Context, format Format, size int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s extraction: %w", format, err)
	}
	if int64(size) > p.cfg.MaxInputBytes {
		return &ExtractionError{Format: format, Cause: fmt.Errorf("input too large: %d bytes (max %d)", size, p.cfg.MaxInputBytes)}
	}
	return nil
}
