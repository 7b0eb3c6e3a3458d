// CLAUDE:SUMMARY Defines Format and Result types for the textract extraction pipeline.
package docpipe

// Format identifies a source document type.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatTXT  Format = "txt"
)

// Result is the outcome of one extraction call. Text is always normalized.
type Result struct {
	Format  Format             `json:"format"`
	Text    string             `json:"text"`
	Length  int                `json:"length"`          // code points in Text
	Title   string             `json:"title,omitempty"` // <title> for HTML, first line for PDF
	Quality *ExtractionQuality `json:"quality,omitempty"`
}
