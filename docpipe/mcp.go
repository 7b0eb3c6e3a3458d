package docpipe

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/textract/kit"
)

// RegisterMCP registers the extraction tools on an MCP server. Each tool
// endpoint is wrapped with mw, outermost first.
func (p *Pipeline) RegisterMCP(srv *mcp.Server, mw ...kit.Middleware) {
	p.registerHTMLTool(srv, mw)
	p.registerTextTool(srv, mw)
	p.registerMarkdownTool(srv, mw)
	p.registerFormatsTool(srv, mw)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// textResult is the tool payload, shaped like the HTTP responses.
type textResult struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
	Title  string `json:"title,omitempty"`
	format Format
}

func (r textResult) OutputChars() int  { return r.Length }
func (r textResult) DocFormat() string { return string(r.format) }

type markdownResult struct {
	Markdown string `json:"markdown"`
	Length   int    `json:"length"`
}

func (r markdownResult) OutputChars() int  { return r.Length }
func (r markdownResult) DocFormat() string { return "markdown" }

// --- html ---

type htmlReq struct {
	HTML string `json:"html"`
}

func (r *htmlReq) InputSize() int64   { return int64(len(r.HTML)) }
func (r *htmlReq) SourceName() string { return "" }
func (r *htmlReq) DocFormat() string  { return string(FormatHTML) }

func (p *Pipeline) registerHTMLTool(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "textract_html",
		Description: "Extract normalized plain text from an HTML document (scripts and styles removed).",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "HTML source"},
		}, []string{"html"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*htmlReq)
		res, err := p.ExtractHTML(ctx, r.HTML)
		if err != nil {
			return nil, err
		}
		return textResult{Text: res.Text, Length: res.Length, Title: res.Title, format: res.Format}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r htmlReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(mw...)(endpoint), decode)
}

// --- text ---

type textReq struct {
	Content string `json:"content"`
}

func (r *textReq) InputSize() int64   { return int64(len(r.Content)) }
func (r *textReq) SourceName() string { return "" }
func (r *textReq) DocFormat() string  { return string(FormatTXT) }

func (p *Pipeline) registerTextTool(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "textract_text",
		Description: "Normalize plain text: strip stray markup and control characters, collapse whitespace.",
		InputSchema: inputSchema(map[string]any{
			"content": map[string]any{"type": "string", "description": "Text to normalize"},
		}, []string{"content"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*textReq)
		res, err := p.ExtractText(ctx, r.Content)
		if err != nil {
			return nil, err
		}
		return textResult{Text: res.Text, Length: res.Length, format: res.Format}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r textReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(mw...)(endpoint), decode)
}

// --- markdown ---

func (p *Pipeline) registerMarkdownTool(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "textract_markdown",
		Description: "Convert an HTML document to CommonMark markdown.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "HTML source"},
		}, []string{"html"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*htmlReq)
		md, err := p.ToMarkdown(ctx, r.HTML)
		if err != nil {
			return nil, err
		}
		return markdownResult{Markdown: md, Length: utf8.RuneCountInString(md)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r htmlReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(mw...)(endpoint), decode)
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "textract_formats",
		Description: "List supported document formats and file extensions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats(), "extensions": SupportedExtensions()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(mw...)(endpoint), decode)
}
