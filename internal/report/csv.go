package report

import (
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/nao1215/brokenlink/internal/model"
)

// CSVRow is one exported record. Absent optional values are empty cells.
type CSVRow struct {
	URL        string `csv:"url"`
	Status     string `csv:"status"`
	StatusCode string `csv:"status_code"`
	FinalURL   string `csv:"final_url"`
	Error      string `csv:"error"`
	Type       string `csv:"type"`
	Timestamp  string `csv:"timestamp"`
}

// CSVWriter outputs one row per record: working, then broken, then error.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the result as CSV with a header row.
func (w *CSVWriter) Write(result *model.ScanResult) (int, error) {
	records := result.Records()
	rows := make([]*CSVRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, toCSVRow(rec))
	}

	cw := &countingWriter{w: w.output}
	if len(rows) == 0 {
		// An empty scan still gets the header row.
		return cw.Write([]byte("url,status,status_code,final_url,error,type,timestamp\n"))
	}
	if err := gocsv.Marshal(&rows, cw); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func toCSVRow(rec model.LinkRecord) *CSVRow {
	row := &CSVRow{
		URL:      rec.URL,
		Status:   string(rec.Status),
		FinalURL: rec.FinalURL,
		Error:    rec.ErrorMessage,
		Type:     string(rec.Kind),
	}
	if rec.StatusCode != 0 {
		row.StatusCode = strconv.Itoa(rec.StatusCode)
	}
	if !rec.DiscoveredAt.IsZero() {
		row.Timestamp = rec.DiscoveredAt.Format(time.RFC3339)
	}
	return row
}
