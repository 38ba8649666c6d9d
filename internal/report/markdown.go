package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format for sharing in issues,
// pull requests and wikis.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result *model.ScanResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeSummary(md, result)
	w.writeLinks(md, "Broken Links", result.Broken)
	w.writeLinks(md, "Error Links", result.Errors)
	md.PlainText("---")
	md.PlainText("*Generated by brokenlink*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *model.ScanResult) {
	md.H1("Broken Link Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + result.Config.StartURL + "`"},
			{"Domain", result.StartDomain},
			{"Started", result.StartTime.Format("2006-01-02 15:04:05 MST")},
			{"Duration", result.Duration().Round(time.Millisecond).String()},
			{"Max URLs / Depth", strconv.Itoa(result.Config.MaxURLs) + " / " + strconv.Itoa(result.Config.MaxDepth)},
			{"Status", statusText(result)},
		},
	})
	md.PlainText("")
}

func statusText(result *model.ScanResult) string {
	if result.Cancelled {
		return "⚠️ Interrupted (partial results)"
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, result *model.ScanResult) {
	s := result.Statistics

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"✅ Working", strconv.Itoa(s.WorkingCount)},
			{"❌ Broken", strconv.Itoa(s.BrokenCount)},
			{"⚠️ Error", strconv.Itoa(s.ErrorCount)},
			{"**Total**", "**" + strconv.Itoa(s.TotalProcessed) + "**"},
			{"Pages crawled", strconv.Itoa(s.VisitedPagesCount)},
		},
	})
	md.PlainText("")

	if s.TotalProcessed > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Link Status"),
			piechart.WithShowData(true),
		)
		if s.WorkingCount > 0 {
			chart.LabelAndIntValue("Working", uint64(s.WorkingCount))
		}
		if s.BrokenCount > 0 {
			chart.LabelAndIntValue("Broken", uint64(s.BrokenCount))
		}
		if s.ErrorCount > 0 {
			chart.LabelAndIntValue("Error", uint64(s.ErrorCount))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case s.BrokenCount > 0:
		md.Cautionf("%d broken link(s) found.", s.BrokenCount)
	case s.ErrorCount > 0:
		md.Warningf("%d link(s) could not be checked.", s.ErrorCount)
	default:
		md.Tip("No broken links found.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeLinks(md *markdown.Markdown, title string, records []model.LinkRecord) {
	if len(records) == 0 {
		return
	}

	md.H2(title)
	md.PlainText("")

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		detail := rec.ErrorMessage
		if rec.StatusCode != 0 {
			detail = strconv.Itoa(rec.StatusCode)
		}
		rows = append(rows, []string{"`" + rec.URL + "`", detail, string(rec.Kind)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status / Error", "Type"},
		Rows:   rows,
	})
	md.PlainText("")
}
