// CLAUDE:SUMMARY PDF extraction quality scoring: flags documents that likely need OCR or lose figures.
// CLAUDE:EXPORTS ExtractionQuality, NeedsOCR, VisualGap, computePrintableRatio, computeWordlikeRatio, countVisualRefs
package docpipe

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractionQuality captures metrics about PDF text extraction quality.
// It only flags documents; no OCR is ever run.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
	VisualGap       bool    `json:"visual_gap"` // text cites figures or tables that live in images
	NeedsOCR        bool    `json:"needs_ocr"`
}

func newExtractionQuality(text string, pageCount int, hasImages bool) *ExtractionQuality {
	q := &ExtractionQuality{
		PageCount:       pageCount,
		PrintableRatio:  computePrintableRatio(text),
		WordlikeRatio:   computeWordlikeRatio(text),
		HasImageStreams: hasImages,
		VisualRefCount:  countVisualRefs(text),
	}
	if pageCount > 0 {
		q.CharsPerPage = float64(utf8.RuneCountInString(text)) / float64(pageCount)
	}
	q.VisualGap = q.VisualRefCount > 0 && q.HasImageStreams
	q.NeedsOCR = q.needsOCR()
	return q
}

// needsOCR is true when the text layer is too thin for an image-bearing
// document or mostly unprintable.
func (q *ExtractionQuality) needsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// computePrintableRatio returns the ratio of printable characters in text.
// Excludes PUA U+E000-U+F8FF, control chars < U+0020 (except \n\r\t), U+FFFD.
func computePrintableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF: // private use area
		return true
	case r == utf8.RuneError:
		return true
	case r < 0x0020 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}

// computeWordlikeRatio returns the ratio of word-like tokens (2-15 runes) to
// all tokens. CJK runs count as one token each, so the ratio is meaningful
// only for space-separated scripts.
func computeWordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := utf8.RuneCountInString(f)
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}

var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(see|refer\s+to|cf\.?)\s+(the\s+)?(figure|fig\.?|table|chart|diagram|image|illustration|graph)\s*\d`),
	regexp.MustCompile(`(?i)(figure|fig\.?|table)\s+\d+`),
	regexp.MustCompile(`(图|表)\s*\d+`),
}

// countVisualRefs counts references to figures, tables, and diagrams in text.
func countVisualRefs(text string) int {
	count := 0
	for _, pat := range visualRefPatterns {
		count += len(pat.FindAllStringIndex(text, -1))
	}
	return count
}
