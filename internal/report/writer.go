package report

import (
	"io"

	"github.com/nao1215/brokenlink/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the result to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(result *model.ScanResult) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.ScanResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// countingWriter counts bytes for libraries that only report errors.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// NewWriter returns the writer for a format name: "json", "csv", "markdown"
// or "text". Unknown names return nil.
func NewWriter(format string, output io.Writer) Writer {
	switch format {
	case "json":
		return NewJSONWriter(output, WithPrettyPrint())
	case "csv":
		return NewCSVWriter(output)
	case "markdown", "md":
		return NewMarkdownWriter(output)
	case "text", "":
		return NewSimpleWriter(output)
	default:
		return nil
	}
}
