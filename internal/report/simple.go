package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/nao1215/brokenlink/internal/model"
	"github.com/rodaine/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SimpleWriter outputs a human-readable summary for the terminal: scan
// information, counters and tables of broken and error links.
type SimpleWriter struct {
	baseWriter

	// color enables ANSI colours.
	color bool

	// showWorking also lists working links.
	showWorking bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithColor enables coloured output.
func WithColor(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.color = enabled
	}
}

// WithShowWorking lists working links as well.
func WithShowWorking(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showWorking = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary.
func (w *SimpleWriter) Write(result *model.ScanResult) (int, error) {
	var sb strings.Builder
	s := result.Statistics
	title := cases.Title(language.English)

	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString("BROKEN LINK CHECKER - SUMMARY REPORT\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Start URL:      %s\n", result.Config.StartURL)
	fmt.Fprintf(&sb, "Domain:         %s\n", result.StartDomain)
	fmt.Fprintf(&sb, "Duration:       %.2fs\n", result.Duration().Seconds())
	if result.Cancelled {
		sb.WriteString("Status:         interrupted, partial results\n")
	}
	fmt.Fprintf(&sb, "Total URLs:     %d\n", s.TotalProcessed)
	fmt.Fprintf(&sb, "Pages crawled:  %d\n", s.VisitedPagesCount)
	fmt.Fprintf(&sb, "%-16s%s\n", title.String(string(model.StatusWorking))+":", w.paint(model.StatusWorking, strconv.Itoa(s.WorkingCount)))
	fmt.Fprintf(&sb, "%-16s%s\n", title.String(string(model.StatusBroken))+":", w.paint(model.StatusBroken, strconv.Itoa(s.BrokenCount)))
	fmt.Fprintf(&sb, "%-16s%s\n", title.String(string(model.StatusError))+":", w.paint(model.StatusError, strconv.Itoa(s.ErrorCount)))

	if w.showWorking {
		w.writeTable(&sb, title, model.StatusWorking, result.Working)
	}
	w.writeTable(&sb, title, model.StatusBroken, result.Broken)
	w.writeTable(&sb, title, model.StatusError, result.Errors)

	if !result.HasProblems() {
		sb.WriteString("\nNo broken links found.\n")
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeTable(sb *strings.Builder, title cases.Caser, status model.LinkStatus, records []model.LinkRecord) {
	if len(records) == 0 {
		return
	}

	fmt.Fprintf(sb, "\n%s links (%d):\n", title.String(string(status)), len(records))

	tbl := table.New("URL", "Status", "Detail").WithWriter(sb)
	if w.color {
		tbl = tbl.WithHeaderFormatter(color.New(color.FgCyan, color.Underline).SprintfFunc())
	}
	for _, rec := range records {
		code := "-"
		if rec.StatusCode != 0 {
			code = strconv.Itoa(rec.StatusCode)
		}
		detail := rec.ErrorMessage
		if detail == "" && rec.FinalURL != "" {
			detail = "-> " + rec.FinalURL
		}
		tbl.AddRow(rec.URL, w.paint(status, code), detail)
	}
	tbl.Print()
}

func (w *SimpleWriter) paint(status model.LinkStatus, text string) string {
	if !w.color {
		return text
	}
	return statusColor(status).Sprint(text)
}

// statusColor returns the colour used for a status, forced on regardless of
// terminal detection.
func statusColor(status model.LinkStatus) *color.Color {
	var c *color.Color
	switch status {
	case model.StatusWorking:
		c = color.New(color.FgGreen)
	case model.StatusBroken:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgYellow)
	}
	c.EnableColor()
	return c
}

// ProgressLine formats the per-link console line printed while a scan runs.
func ProgressLine(n, maxURLs int, rec model.LinkRecord, colored bool) string {
	var mark string
	switch rec.Status {
	case model.StatusWorking:
		mark = "OK " + strconv.Itoa(rec.StatusCode)
	case model.StatusBroken:
		mark = "BROKEN " + strconv.Itoa(rec.StatusCode)
	default:
		mark = "ERROR " + rec.ErrorMessage
	}
	if colored {
		mark = statusColor(rec.Status).Sprint(mark)
	}
	return fmt.Sprintf("[%d/%d] %s  %s", n, maxURLs, rec.URL, mark)
}
