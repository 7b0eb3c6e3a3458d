// CLAUDE:SUMMARY Canonical whitespace/control-character cleanup applied to every extractor's output.
package docpipe

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize canonicalizes extracted text. In order it removes ASCII control
// characters other than \t \n \r, collapses runs of spaces and tabs to one
// space, folds any newline/whitespace/newline run into exactly two newlines,
// trims every line and trims the whole result.
//
// Invalid UTF-8 sequences are replaced with U+FFFD first. Normalize is
// idempotent.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "�")
	text = stripControl(text)
	text = collapseBlanks(text)
	text = collapseNewlines(text)

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isStrippedControl(r rune) bool {
	switch {
	case r <= 0x08, r == 0x0B, r == 0x0C, r == 0x7F:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	}
	return false
}

func stripControl(s string) string {
	if strings.IndexFunc(s, isStrippedControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, s)
}

// collapseBlanks replaces every run of ' ' and '\t' with a single space.
func collapseBlanks(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inRun := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			if !inRun {
				sb.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		sb.WriteByte(c)
	}
	return sb.String()
}

// collapseNewlines rewrites every match of \n\s*\n+ to "\n\n", scanning left
// to right with greedy matches. A match always ends on the last newline of
// the whitespace run following the first one.
func collapseNewlines(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] != '\n' {
			sb.WriteByte(s[i])
			i++
			continue
		}
		// Find the maximal whitespace run after this newline and the last
		// newline inside it.
		j := i + 1
		lastNL := -1
		for j < len(s) {
			r, size := rune(s[j]), 1
			if r >= 0x80 {
				r, size = utf8.DecodeRuneInString(s[j:])
			}
			if !unicode.IsSpace(r) {
				break
			}
			if r == '\n' {
				lastNL = j
			}
			j += size
		}
		if lastNL < 0 {
			sb.WriteByte('\n')
			i++
			continue
		}
		sb.WriteString("\n\n")
		i = lastNL + 1
	}
	return sb.String()
}
