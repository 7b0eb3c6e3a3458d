package docpipe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is wrapped by every FormatMismatchError.
var ErrUnsupportedFormat = errors.New("unsupported format")

// FormatMismatchError is returned when the file name does not carry an
// extension the target extractor accepts. It is raised before any parsing.
type FormatMismatchError struct {
	Filename string
	Format   Format   // expected format, empty when detection found nothing
	Want     []string // accepted extensions
}

func (e *FormatMismatchError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("file %q: %v (supported: %s)", e.Filename, ErrUnsupportedFormat, strings.Join(e.Want, ", "))
	}
	return fmt.Sprintf("File must be a %s document (%s)", strings.ToUpper(string(e.Format)), strings.Join(e.Want, " or "))
}

func (e *FormatMismatchError) Unwrap() error { return ErrUnsupportedFormat }

// ExtractionError is returned when the underlying parser rejects the input.
type ExtractionError struct {
	Format Format
	Cause  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed: %v", strings.ToUpper(string(e.Format)), e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// IsClientError reports whether err is one of the pipeline's input errors
// (format mismatch or extraction failure) as opposed to an internal fault.
func IsClientError(err error) bool {
	var fm *FormatMismatchError
	var ee *ExtractionError
	return errors.As(err, &fm) || errors.As(err, &ee)
}
