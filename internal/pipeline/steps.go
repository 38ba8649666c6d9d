package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/report"
)

// extensions maps output formats to file extensions.
var extensions = map[string]string{
	"json":     ".json",
	"csv":      ".csv",
	"markdown": ".md",
}

// FileStep writes the scan result to a file in one report format.
//
// The file goes either to a fixed path or into a directory under a name
// derived from the start URL and the scan date.
type FileStep struct {
	format string
	path   string
	dir    string
	logger *slog.Logger
}

// FileStepOption configures a FileStep.
type FileStepOption func(*FileStep)

// WithFileLogger sets a custom logger for the file step.
func WithFileLogger(logger *slog.Logger) FileStepOption {
	return func(s *FileStep) {
		s.logger = logger
	}
}

// NewFileStep returns a step writing format to path.
func NewFileStep(format, path string, opts ...FileStepOption) *FileStep {
	return newFileStep(format, path, "", opts)
}

// NewDirFileStep returns a step writing format into dir, named like
// "example_com_docs_20250101.json".
func NewDirFileStep(format, dir string, opts ...FileStepOption) *FileStep {
	return newFileStep(format, "", dir, opts)
}

func newFileStep(format, path, dir string, opts []FileStepOption) *FileStep {
	s := &FileStep{
		format: format,
		path:   path,
		dir:    dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *FileStep) Name() string {
	return s.format + "_file"
}

// Do writes the report file and records its path in scan.Files.
func (s *FileStep) Do(_ context.Context, scan *Scan) error {
	if scan.Result == nil {
		return ErrNoResult
	}
	ext, ok := extensions[s.format]
	if !ok {
		return fmt.Errorf("unsupported report format %q", s.format)
	}

	path := s.path
	if path == "" {
		name := report.ResultFileName(scan.Config.StartURL, scanDate(scan.Result))
		path = filepath.Join(s.dir, strings.TrimSuffix(name, ".json")+ext)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, path, err := s.create(path, scan.ID)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if _, err := report.NewWriter(s.format, f).Write(scan.Result); err != nil {
		return fmt.Errorf("failed to write %s report: %w", s.format, err)
	}

	scan.Files[s.format] = path
	s.logger.Info("report written", "scan_id", scan.ID, "format", s.format, "path", path)
	return nil
}

// create opens the report file. A fixed path is overwritten. In a directory
// the derived name is claimed exclusively; when an earlier scan of the same
// URL already owns it, the scan ID is appended so both reports survive.
func (s *FileStep) create(path, id string) (*os.File, string, error) {
	// Reports list every URL of the site, keep them private to the owner.
	if s.path != "" {
		f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		return f, path, err
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if !errors.Is(err, fs.ErrExist) {
		return f, path, err
	}

	ext := filepath.Ext(path)
	path = strings.TrimSuffix(path, ext) + "_" + fileSuffix(id) + ext
	f, err = os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	return f, path, err
}

// fileSuffix shortens a scan ID for use in a file name.
func fileSuffix(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if id == "" {
		return time.Now().Format("150405.000000")
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func scanDate(result *model.ScanResult) time.Time {
	if result.StartTime.IsZero() {
		return time.Now()
	}
	return result.StartTime
}

// Archiver stores finished scans.
type Archiver interface {
	SaveScan(ctx context.Context, id string, result *model.ScanResult) error
}

// ArchiveStep saves the scan into the scan archive.
type ArchiveStep struct {
	archive Archiver
}

// NewArchiveStep returns a step saving scans into archive.
func NewArchiveStep(archive Archiver) *ArchiveStep {
	return &ArchiveStep{archive: archive}
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return "archive"
}

// Do saves the scan result under the scan ID.
func (s *ArchiveStep) Do(ctx context.Context, scan *Scan) error {
	if scan.Result == nil {
		return ErrNoResult
	}
	return s.archive.SaveScan(ctx, scan.ID, scan.Result)
}
