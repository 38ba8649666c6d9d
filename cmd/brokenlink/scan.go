package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/nao1215/brokenlink/internal/config"
	"github.com/nao1215/brokenlink/internal/crawler"
	"github.com/nao1215/brokenlink/internal/database"
	"github.com/nao1215/brokenlink/internal/httpclient"
	"github.com/nao1215/brokenlink/internal/log"
	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/pipeline"
	"github.com/nao1215/brokenlink/internal/report"
	"github.com/spf13/cobra"
)

// ErrProblemsFound is returned by the scan command with --fail-on-broken
// when a scan found broken or error links.
var ErrProblemsFound = errors.New("broken or error links found")

// reportFormats lists the file formats in the order they are written.
var reportFormats = []string{"json", "csv", "markdown"}

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url]...",
		Short: "Check a website for broken links",
		Long: `Scan crawls a website breadth-first from each start URL and checks every
link it finds. Pages on the start URL's domain are crawled for more links
until --max-urls links have been checked or --max-depth is reached.

Each checked link is printed as it is validated, followed by a summary of
broken links (HTTP 4xx/5xx) and error links (timeouts, DNS failures, ...).
Press Ctrl+C to stop early; the links checked so far are still reported.

Examples:
  # Check a site with the defaults (100 URLs, depth 2, 1s between requests)
  brokenlink scan https://example.com

  # Check more of the site, faster
  brokenlink scan -n 500 -d 4 --delay 200ms https://example.com

  # Check several sites, two at a time
  brokenlink scan -b 2 https://example.com https://example.org

  # Save reports and fail a CI job when broken links are found
  brokenlink scan --json report.json --csv report.csv --fail-on-broken https://example.com

Configuration file (.brokenlink.yaml) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 3
      ignorePatterns:
        - "/logout"
        - "*.pdf"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	// Crawl flags
	cmd.Flags().IntP("max-urls", "n", model.DefaultMaxURLs,
		"Maximum number of URLs checked per scan")
	cmd.Flags().IntP("max-depth", "d", model.DefaultMaxDepth,
		"Maximum link distance from the start URL (0 checks only the start URL)")
	cmd.Flags().Duration("delay", model.DefaultDelay,
		"Minimum time between two requests of a scan")
	cmd.Flags().Bool("external", false,
		"Also crawl pages on other domains")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of start URLs scanned concurrently")
	addTransportFlags(cmd)

	// Output flags
	cmd.Flags().String("json", "",
		"Write a JSON report to this file (a directory when several URLs are scanned)")
	cmd.Flags().String("csv", "",
		"Write a CSV report to this file (a directory when several URLs are scanned)")
	cmd.Flags().String("markdown", "",
		"Write a Markdown report to this file (a directory when several URLs are scanned)")
	cmd.Flags().BoolP("quiet", "q", false,
		"Do not print each link as it is checked")
	cmd.Flags().Bool("fail-on-broken", false,
		"Exit with a non-zero status when broken or error links are found")

	// Archive flags
	cmd.Flags().Bool("no-db", false,
		"Do not save the scan to the archive")
	addDBDirFlag(cmd)

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildScanConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	// Ctrl+C stops the running scans; their partial results are still reported.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cfg, cmd.OutOrStdout(), logger)
}

// buildScanConfig creates a Config from cobra command flags.
func buildScanConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.MaxURLs, err = cmd.Flags().GetInt("max-urls")
	if err != nil {
		return nil, err
	}

	cfg.MaxDepth, err = cmd.Flags().GetInt("max-depth")
	if err != nil {
		return nil, err
	}

	cfg.Delay, err = cmd.Flags().GetDuration("delay")
	if err != nil {
		return nil, err
	}

	cfg.External, err = cmd.Flags().GetBool("external")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	if err := applyTransportFlags(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.JSONFile, err = cmd.Flags().GetString("json")
	if err != nil {
		return nil, err
	}

	cfg.CSVFile, err = cmd.Flags().GetString("csv")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownFile, err = cmd.Flags().GetString("markdown")
	if err != nil {
		return nil, err
	}

	cfg.Quiet, err = cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, err
	}

	cfg.FailOnBroken, err = cmd.Flags().GetBool("fail-on-broken")
	if err != nil {
		return nil, err
	}

	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	cfg.DBDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Targets = args

	return cfg, nil
}

// scanRunner runs the scans of one scan command invocation.
type scanRunner struct {
	cfg     *config.Config
	builder *engineBuilder
	db      *database.ScanDB
	logger  *slog.Logger
	colored bool

	// mu serializes writes to out and errOut between concurrent scans.
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	results []*model.ScanResult
}

// runScan executes the scan.
func runScan(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	if len(cfg.Targets) == 0 {
		return config.ErrNoTarget
	}

	// Validate and normalize all start URLs before the first request.
	for i, target := range cfg.Targets {
		normalized, err := crawler.Normalize(target, "")
		if err != nil {
			return fmt.Errorf("invalid start URL %q: %w", target, err)
		}
		cfg.Targets[i] = normalized
	}

	logger.Info("starting scan",
		"targets", cfg.Targets,
		"batch_size", cfg.BatchSize,
		"save_to_db", cfg.SaveToDB,
	)

	client, err := httpclient.New(cfg.HTTPClientOptions())
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var db *database.ScanDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	s := &scanRunner{
		cfg:     cfg,
		builder: &engineBuilder{cfg: cfg, client: client, logger: logger},
		db:      db,
		logger:  logger,
		colored: out == os.Stdout && !color.NoColor,
		out:     out,
		errOut:  os.Stderr,
	}

	if len(cfg.Targets) > 1 && cfg.BatchSize > 1 {
		err = s.runBatch(ctx)
	} else {
		err = s.runSequential(ctx)
	}
	if err != nil {
		return err
	}

	if cfg.FailOnBroken {
		for _, result := range s.results {
			if result.HasProblems() {
				return ErrProblemsFound
			}
		}
	}
	return nil
}

// runSequential scans targets one at a time.
func (s *scanRunner) runSequential(ctx context.Context) error {
	multi := len(s.cfg.Targets) > 1

	for _, target := range s.cfg.Targets {
		if ctx.Err() != nil {
			return fmt.Errorf("scan interrupted: %w", ctx.Err())
		}

		scanCfg := s.cfg.ScanConfig(target)
		fmt.Fprintf(s.out, "Scanning %s (max %d URLs, depth %d)...\n", target, scanCfg.MaxURLs, scanCfg.MaxDepth)

		result, err := s.builder.build(target, s.progress(scanCfg)).Run(ctx, scanCfg)
		if err != nil {
			s.logger.Error("scan failed", "start_url", target, "error", err)
			fmt.Fprintf(s.errOut, "Scan error for %s: %v\n", target, err)
			continue
		}

		scan := pipeline.NewScan(uuid.NewString(), scanCfg, result)
		// Outputs of an interrupted scan are still written.
		if err := s.newPipeline(multi).Execute(context.WithoutCancel(ctx), scan); err != nil {
			s.logger.Error("failed to save scan outputs", "start_url", target, "error", err)
		}
		s.finish(scan)
	}
	return nil
}

// runBatch scans several targets concurrently using BatchProcessor.
func (s *scanRunner) runBatch(ctx context.Context) error {
	fmt.Fprintf(s.out, "Starting batch scan of %d URLs (concurrency: %d)...\n\n",
		len(s.cfg.Targets), s.cfg.BatchSize)
	startTime := time.Now()

	cfgs := make([]model.ScanConfig, len(s.cfg.Targets))
	for i, target := range s.cfg.Targets {
		cfgs[i] = s.cfg.ScanConfig(target)
	}

	bp := pipeline.NewBatchProcessor(
		func(ctx context.Context, cfg model.ScanConfig) (*model.ScanResult, error) {
			return s.builder.build(cfg.StartURL, s.progress(cfg)).Run(ctx, cfg)
		},
		pipeline.WithConcurrency(s.cfg.BatchSize),
		pipeline.WithBatchLogger(s.logger),
		pipeline.WithPipelineFactory(func() *pipeline.Pipeline {
			return s.newPipeline(true)
		}),
	)

	err := bp.ProcessBatchWithCallback(ctx, cfgs, func(scan *pipeline.Scan, index int) {
		if scan.Result == nil {
			s.mu.Lock()
			fmt.Fprintf(s.errOut, "[%d/%d] Scan error for %s: %v\n", index+1, len(cfgs), scan.Config.StartURL, scan.Err)
			s.mu.Unlock()
			return
		}
		s.finish(scan)
	})

	fmt.Fprintf(s.out, "\nBatch scan completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("scan interrupted: %w", err)
	}
	return nil
}

// progress returns the record hook printing one line per checked link, or
// nil in quiet mode. The hook runs on the scan goroutine only.
func (s *scanRunner) progress(cfg model.ScanConfig) func(model.LinkRecord) {
	if s.cfg.Quiet {
		return nil
	}
	n := 0
	return func(rec model.LinkRecord) {
		n++
		line := report.ProgressLine(n, cfg.MaxURLs, rec, s.colored)

		s.mu.Lock()
		defer s.mu.Unlock()
		fmt.Fprintln(s.out, line)
	}
}

// newPipeline creates the output pipeline for one scan. When several URLs
// are scanned, report paths are directories holding one file per scan.
func (s *scanRunner) newPipeline(multi bool) *pipeline.Pipeline {
	p := pipeline.New(
		pipeline.WithLogger(s.logger),
		pipeline.WithContinueOnError(true),
	)

	paths := map[string]string{
		"json":     s.cfg.JSONFile,
		"csv":      s.cfg.CSVFile,
		"markdown": s.cfg.MarkdownFile,
	}
	for _, format := range reportFormats {
		path := paths[format]
		if path == "" {
			continue
		}
		if multi {
			p.AddStep(pipeline.NewDirFileStep(format, path, pipeline.WithFileLogger(s.logger)))
		} else {
			p.AddStep(pipeline.NewFileStep(format, path, pipeline.WithFileLogger(s.logger)))
		}
	}

	if s.db != nil {
		p.AddStep(pipeline.NewArchiveStep(s.db))
	}
	return p
}

// finish prints the summary of a finished scan and records its result.
func (s *scanRunner) finish(scan *pipeline.Scan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, scan.Result)

	fmt.Fprintln(s.out)
	if scan.Result.Cancelled {
		fmt.Fprintln(s.out, "Scan interrupted, showing the links checked so far.")
	}
	if _, err := report.NewSimpleWriter(s.out, report.WithColor(s.colored)).Write(scan.Result); err != nil {
		s.logger.Error("failed to print summary", "start_url", scan.Config.StartURL, "error", err)
	}

	for _, format := range reportFormats {
		if path, ok := scan.Files[format]; ok {
			fmt.Fprintf(s.out, "Report written: %s\n", path)
		}
	}
	if slices.Contains(scan.PerformedSteps, "archive") {
		fmt.Fprintf(s.out, "Scan saved to archive (id: %s)\n", scan.ID)
	}
	fmt.Fprintln(s.out)
}
