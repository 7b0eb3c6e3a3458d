// CLAUDE:SUMMARY PDF extraction: pdfcpu validation + image detection, ledongthuc/pdf glyphs, layout analysis, quality scoring.
// CLAUDE:DEPENDS docpipe/layout.go, docpipe/quality.go
package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxTitleRunes caps Result.Title for PDFs.
const maxTitleRunes = 200

// ExtractPDF returns the text of a PDF in layout reading order. Pages are
// separated by a form feed before normalization, which removes it. Any
// failure of the underlying readers aborts the call; partial text is never
// returned.
func (p *Pipeline) ExtractPDF(ctx context.Context, data []byte) (res *Result, err error) {
	defer p.guard(FormatPDF, &err)
	if err := p.precheck(ctx, FormatPDF, len(data)); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, p.fail(FormatPDF, fmt.Errorf("pdfcpu read: %w", err))
	}
	hasImages := detectImageStreams(pctx)

	pages, err := readGlyphs(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, p.fail(FormatPDF, err)
	}

	var sb strings.Builder
	for _, glyphs := range pages {
		sb.WriteString(layoutPage(glyphs, p.cfg.Layout))
		sb.WriteByte('\f')
	}
	text := Normalize(strings.ToValidUTF8(sb.String(), "�"))

	res = newResult(FormatPDF, text)
	res.Title = firstLine(text, maxTitleRunes)
	res.Quality = newExtractionQuality(text, pctx.PageCount, hasImages)
	return res, nil
}

// readGlyphs returns the positioned glyphs of every page, in content
// stream order.
func readGlyphs(ctx context.Context, data []byte) ([][]glyph, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf reader: %w", err)
	}
	n := r.NumPage()
	pages := make([][]glyph, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pdf extraction: %w", err)
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, nil)
			continue
		}
		texts := page.Content().Text
		glyphs := make([]glyph, 0, len(texts))
		for _, t := range texts {
			glyphs = append(glyphs, toGlyph(t))
		}
		pages = append(pages, glyphs)
	}
	return pages, nil
}

// toGlyph builds a glyph box from its baseline origin: font size is the
// height and the advance width the width. Fonts without widths get half an
// em.
func toGlyph(t pdf.Text) glyph {
	size := math.Abs(t.FontSize)
	if size == 0 {
		size = 1
	}
	w := math.Abs(t.W)
	if w == 0 {
		w = size / 2
	}
	return glyph{bbox: bbox{x0: t.X, y0: t.Y, x1: t.X + w, y1: t.Y + size}, s: t.S}
}

// firstLine returns the first non-empty line of text, capped at limit runes.
func firstLine(text string, limit int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > limit {
			line = string(r[:limit])
		}
		return line
	}
	return ""
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	// Fallback: scan the xref table for image subtype objects.
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}
