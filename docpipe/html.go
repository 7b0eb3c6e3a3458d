// CLAUDE:SUMMARY HTML extraction: script/style removal and text concatenation via goquery, charset decoding, bluemonday text sanitizing, markdown conversion.
package docpipe

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// ExtractHTML returns the visible text of an HTML document. Every script and
// style subtree is removed, the remaining text nodes are concatenated in
// document order with no separator, and the result is normalized.
// Result.Title carries the <title> text when present.
func (p *Pipeline) ExtractHTML(ctx context.Context, src string) (res *Result, err error) {
	defer p.guard(FormatHTML, &err)
	if err := p.precheck(ctx, FormatHTML, len(src)); err != nil {
		return nil, err
	}

	// Scripting disabled so <noscript> content is parsed as markup rather
	// than surfacing as a raw text node.
	root, err := xhtml.ParseWithOptions(strings.NewReader(src), xhtml.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, p.fail(FormatHTML, err)
	}
	doc := goquery.NewDocumentFromNode(root)

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style").Remove()

	res = newResult(FormatHTML, Normalize(doc.Text()))
	res.Title = Normalize(title)
	return res, nil
}

// ExtractText sanitizes content that is expected to be plain text but may
// carry stray markup: every tag is stripped, entities are unescaped and the
// result is normalized.
func (p *Pipeline) ExtractText(ctx context.Context, content string) (*Result, error) {
	if err := p.precheck(ctx, FormatTXT, len(content)); err != nil {
		return nil, err
	}
	stripped := p.strict.Sanitize(content)
	return newResult(FormatTXT, Normalize(html.UnescapeString(stripped))), nil
}

// ToMarkdown converts an HTML document to CommonMark, tables included.
func (p *Pipeline) ToMarkdown(ctx context.Context, src string) (md string, err error) {
	defer p.guard(FormatHTML, &err)
	if err := p.precheck(ctx, FormatHTML, len(src)); err != nil {
		return "", err
	}
	out, err := p.md.ConvertString(src)
	if err != nil {
		return "", p.fail(FormatHTML, fmt.Errorf("markdown: %w", err))
	}
	return strings.TrimSpace(out), nil
}

// decodeHTML converts raw HTML bytes to a UTF-8 string using the charset
// from contentType, a BOM or a <meta> declaration, falling back to
// windows-1252 as browsers do.
func decodeHTML(data []byte, contentType string) (string, error) {
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" {
		return string(data), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}

func newStrictPolicy() *bluemonday.Policy {
	return bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)
}
