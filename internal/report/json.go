package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/brokenlink/internal/model"
)

// ErrInconsistentReport is returned by ParseJSON when the statistics of a
// document disagree with its link lists.
var ErrInconsistentReport = errors.New("inconsistent report")

// JSONReport is the exported document layout.
type JSONReport struct {
	ScanInfo   ScanInfo         `json:"scan_info"`
	Statistics model.Statistics `json:"statistics"`
	Results    Results          `json:"results"`
}

// ScanInfo describes the scan that produced a report.
type ScanInfo struct {
	StartURL        string    `json:"start_url"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartDomain     string    `json:"start_domain"`
	MaxURLs         int       `json:"max_urls"`
	MaxDepth        int       `json:"max_depth"`

	// Delay is in seconds.
	Delay          float64 `json:"delay"`
	SameDomainOnly bool    `json:"same_domain_only"`
	Cancelled      bool    `json:"cancelled"`
}

// Results holds the three record sequences in validation order.
type Results struct {
	Working []model.LinkRecord `json:"working_links"`
	Broken  []model.LinkRecord `json:"broken_links"`
	Errors  []model.LinkRecord `json:"error_links"`
}

// NewJSONReport converts a result into the exported layout.
func NewJSONReport(result *model.ScanResult) *JSONReport {
	return &JSONReport{
		ScanInfo: ScanInfo{
			StartURL:        result.Config.StartURL,
			StartTime:       result.StartTime,
			EndTime:         result.EndTime,
			DurationSeconds: result.Duration().Seconds(),
			StartDomain:     result.StartDomain,
			MaxURLs:         result.Config.MaxURLs,
			MaxDepth:        result.Config.MaxDepth,
			Delay:           result.Config.Delay.Seconds(),
			SameDomainOnly:  result.Config.SameDomainOnly,
			Cancelled:       result.Cancelled,
		},
		Statistics: result.Statistics,
		Results: Results{
			Working: nonNil(result.Working),
			Broken:  nonNil(result.Broken),
			Errors:  nonNil(result.Errors),
		},
	}
}

// Result converts the document back into a ScanResult.
func (r *JSONReport) Result() *model.ScanResult {
	return &model.ScanResult{
		StartDomain: r.ScanInfo.StartDomain,
		Config: model.ScanConfig{
			StartURL:       r.ScanInfo.StartURL,
			MaxURLs:        r.ScanInfo.MaxURLs,
			MaxDepth:       r.ScanInfo.MaxDepth,
			Delay:          time.Duration(r.ScanInfo.Delay * float64(time.Second)),
			SameDomainOnly: r.ScanInfo.SameDomainOnly,
		},
		StartTime:  r.ScanInfo.StartTime,
		EndTime:    r.ScanInfo.EndTime,
		Cancelled:  r.ScanInfo.Cancelled,
		Statistics: r.Statistics,
		Working:    r.Results.Working,
		Broken:     r.Results.Broken,
		Errors:     r.Results.Errors,
	}
}

// ParseJSON reads a document written by JSONWriter.
func ParseJSON(input io.Reader) (*model.ScanResult, error) {
	var doc JSONReport
	if err := json.NewDecoder(input).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	s := doc.Statistics
	if s.TotalProcessed != s.WorkingCount+s.BrokenCount+s.ErrorCount ||
		s.WorkingCount != len(doc.Results.Working) ||
		s.BrokenCount != len(doc.Results.Broken) ||
		s.ErrorCount != len(doc.Results.Errors) {
		return nil, fmt.Errorf("%w: statistics %+v do not match %d/%d/%d records",
			ErrInconsistentReport, s, len(doc.Results.Working), len(doc.Results.Broken), len(doc.Results.Errors))
	}
	return doc.Result(), nil
}

func nonNil(records []model.LinkRecord) []model.LinkRecord {
	if records == nil {
		return []model.LinkRecord{}
	}
	return records
}

// JSONWriter outputs reports in JSON format.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the result as a JSONReport document.
func (w *JSONWriter) Write(result *model.ScanResult) (int, error) {
	return w.writeJSON(NewJSONReport(result))
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
