// CLAUDE:SUMMARY DOCX extraction: body paragraphs then table cells (grid semantics), via nguyenthenguyen/docx + encoding/xml.
package docpipe

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// maxXMLDepth bounds element nesting in document.xml.
const maxXMLDepth = 256

// ExtractDocx returns the text of a Word document: every non-blank body
// paragraph in order, then every non-blank table cell, table by table and
// row by row, joined with newlines and normalized.
func (p *Pipeline) ExtractDocx(ctx context.Context, data []byte) (res *Result, err error) {
	defer p.guard(FormatDocx, &err)
	if err := p.precheck(ctx, FormatDocx, len(data)); err != nil {
		return nil, err
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, p.fail(FormatDocx, err)
	}
	content := r.Editable().GetContent()
	r.Close()

	root, err := parseXMLTree(strings.NewReader(content))
	if err != nil {
		return nil, p.fail(FormatDocx, err)
	}
	body := root.find("body")
	if body == nil {
		return nil, p.fail(FormatDocx, errors.New("document.xml has no body"))
	}

	var chunks []string
	keep := func(s string) {
		if strings.TrimSpace(s) != "" {
			chunks = append(chunks, s)
		}
	}
	for _, c := range body.children {
		if c.name == "p" {
			keep(paragraphText(c))
		}
	}
	for _, c := range body.children {
		if c.name != "tbl" {
			continue
		}
		for _, cell := range tableCells(c) {
			keep(cell)
		}
	}

	return newResult(FormatDocx, Normalize(strings.Join(chunks, "\n"))), nil
}

// xmlNode is a minimal element tree keyed by local name. WordprocessingML
// uses a single namespace for everything read here.
type xmlNode struct {
	name     string
	attrs    []xml.Attr
	text     strings.Builder
	children []*xmlNode
}

func (n *xmlNode) attr(local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (n *xmlNode) child(name string) *xmlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// find returns the first descendant named name in document order.
func (n *xmlNode) find(name string) *xmlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

func parseXMLTree(r io.Reader) (*xmlNode, error) {
	dec := xml.NewDecoder(r)
	root := &xmlNode{}
	stack := []*xmlNode{root}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > maxXMLDepth {
				return nil, fmt.Errorf("document.xml: nesting depth exceeds %d", maxXMLDepth)
			}
			n := &xmlNode{name: t.Name.Local, attrs: t.Attr}
			top.children = append(top.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 1 {
				top.text.Write(t)
			}
		}
	}
	return root, nil
}

// paragraphText renders a w:p the way Word shows it in plain text: runs
// concatenated, tabs and line breaks kept, deleted and field-code text
// dropped, text boxes and markup-compatibility alternates skipped.
func paragraphText(p *xmlNode) string {
	var sb strings.Builder
	var walk func(*xmlNode)
	walk = func(n *xmlNode) {
		for _, c := range n.children {
			switch c.name {
			case "t":
				sb.WriteString(c.text.String())
			case "tab", "ptab":
				sb.WriteByte('\t')
			case "br":
				if typ, _ := c.attr("type"); typ == "" || typ == "textWrapping" {
					sb.WriteByte('\n')
				}
			case "cr":
				sb.WriteByte('\n')
			case "noBreakHyphen":
				sb.WriteByte('-')
			case "pPr", "rPr", "txbxContent", "delText", "instrText", "AlternateContent":
			default:
				walk(c)
			}
		}
	}
	walk(p)
	return sb.String()
}

// cellText joins the cell's own paragraphs. Nested tables are not part of it.
func cellText(tc *xmlNode) string {
	var parts []string
	for _, c := range tc.children {
		if c.name == "p" {
			parts = append(parts, paragraphText(c))
		}
	}
	return strings.Join(parts, "\n")
}

// tableCells lists cell texts row-major over the table grid: a cell
// spanning n columns appears n times and a vertically merged continuation
// repeats the text of the cell above.
func tableCells(tbl *xmlNode) []string {
	var out []string
	var above []string
	for _, tr := range tbl.children {
		if tr.name != "tr" {
			continue
		}
		var row []string
		for _, tc := range tr.children {
			if tc.name != "tc" {
				continue
			}
			span, merged := cellGrid(tc)
			text := ""
			if merged && len(row) < len(above) {
				text = above[len(row)]
			} else if !merged {
				text = cellText(tc)
			}
			for range span {
				row = append(row, text)
			}
		}
		out = append(out, row...)
		above = row
	}
	return out
}

// cellGrid reads w:tcPr: the gridSpan (at least 1) and whether the cell
// continues a vertical merge.
func cellGrid(tc *xmlNode) (span int, continued bool) {
	span = 1
	pr := tc.child("tcPr")
	if pr == nil {
		return span, false
	}
	if gs := pr.child("gridSpan"); gs != nil {
		if v, ok := gs.attr("val"); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 1 {
				span = n
			}
		}
	}
	if vm := pr.child("vMerge"); vm != nil {
		v, _ := vm.attr("val")
		continued = v != "restart"
	}
	return span, continued
}
