package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/brokenlink/internal/api"
	"github.com/nao1215/brokenlink/internal/config"
	"github.com/nao1215/brokenlink/internal/database"
	"github.com/nao1215/brokenlink/internal/httpclient"
	"github.com/nao1215/brokenlink/internal/log"
	"github.com/nao1215/brokenlink/internal/metrics"
	"github.com/nao1215/brokenlink/internal/pipeline"
	"github.com/nao1215/brokenlink/internal/registry"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful shutdown of the server and its scans.
const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broken link checker as an HTTP API server",
		Long: `Serve starts an HTTP API for submitting scans and polling their progress.

Endpoints:
  POST   /scan              start a scan: {"url": "...", "max_urls": 100, "max_depth": 2,
                            "delay": 1.0, "same_domain_only": true, "wait": false}
  GET    /status/:scan_id   progress and counters of a scan
  GET    /results/:scan_id  report of a finished scan (?format=json|csv|markdown)
  DELETE /scan/:scan_id     cancel a scan
  GET    /scans             all scans known to the server
  GET    /health            liveness probe
  GET    /metrics           Prometheus metrics

The JSON report of every finished scan is written to --download-dir, and
finished scans are saved to the archive so their results survive restarts.

Examples:
  # Listen on the default address (:8000)
  brokenlink serve

  # Run up to 8 scans at once and forget finished scans after a day
  brokenlink serve --max-concurrent 8 --retention 24h --log-file /var/log/brokenlink.log`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", config.DefaultListenAddress,
		"Address the API server listens on")
	cmd.Flags().String("download-dir", config.NewConfig().DownloadDir,
		"Directory receiving the JSON report of every scan (empty disables report files)")
	cmd.Flags().Int("max-concurrent", config.DefaultMaxConcurrent,
		"Maximum number of scans running at once")
	cmd.Flags().Duration("retention", 0,
		"Drop finished scans from memory after this period (0 keeps them)")
	cmd.Flags().String("log-file", "",
		"Also write logs to this file, rotated by size")
	cmd.Flags().Bool("no-db", false,
		"Do not save finished scans to the archive")
	addDBDirFlag(cmd)
	addTransportFlags(cmd)

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, logCloser, err := log.New(log.Options{
		Writer:  cmd.ErrOrStderr(),
		Verbose: cfg.Verbose,
		File:    cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServer(ctx, cfg, logger)
}

// buildServeConfig creates a Config from cobra command flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.ListenAddress, err = cmd.Flags().GetString("listen")
	if err != nil {
		return nil, err
	}

	cfg.DownloadDir, err = cmd.Flags().GetString("download-dir")
	if err != nil {
		return nil, err
	}

	cfg.MaxConcurrent, err = cmd.Flags().GetInt("max-concurrent")
	if err != nil {
		return nil, err
	}

	cfg.Retention, err = cmd.Flags().GetDuration("retention")
	if err != nil {
		return nil, err
	}

	cfg.LogFile, err = cmd.Flags().GetString("log-file")
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

	if err := applyTransportFlags(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// server bundles the API handler with the resources it owns.
type server struct {
	handler  http.Handler
	registry *registry.Registry
	db       *database.ScanDB
}

// newServer wires the registry, archive, metrics and router for cfg.
func newServer(cfg *config.Config, logger *slog.Logger) (*server, error) {
	client, err := httpclient.New(cfg.HTTPClientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	collector := metrics.NewCollector()
	builder := &engineBuilder{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		onRecord: collector.LinkChecked,
	}

	srv := &server{}
	opts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithMaxConcurrent(cfg.MaxConcurrent),
		registry.WithMetrics(collector),
	}

	if cfg.SaveToDB {
		srv.db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Info("database opened", "path", srv.db.Path())
		opts = append(opts, registry.WithArchive(srv.db))
	}

	opts = append(opts, registry.WithPipeline(func() *pipeline.Pipeline {
		p := pipeline.New(
			pipeline.WithLogger(logger),
			pipeline.WithContinueOnError(true),
		)
		if cfg.DownloadDir != "" {
			p.AddStep(pipeline.NewDirFileStep("json", cfg.DownloadDir, pipeline.WithFileLogger(logger)))
		}
		if srv.db != nil {
			p.AddStep(pipeline.NewArchiveStep(srv.db))
		}
		return p
	}))

	srv.registry = registry.New(func() registry.Runner {
		return siteRunner{builder: builder}
	}, opts...)

	srv.handler = api.NewRouter(srv.registry,
		api.WithLogger(logger),
		api.WithMetricsHandler(collector.Handler()),
	)
	return srv, nil
}

// close stops running scans and releases the archive.
func (s *server) close(ctx context.Context) error {
	err := s.registry.Shutdown(ctx)
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

// runServer serves the API until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Retention > 0 {
		go pruneLoop(ctx, srv.registry, cfg.Retention, logger)
	}

	httpServer := api.NewServer(cfg.ListenAddress, srv.handler)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down HTTP server", "error", err)
	}
	if err := srv.close(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("failed to stop running scans: %w", err))
	}
	return serveErr
}

// pruneLoop drops finished scans older than retention until ctx is done.
func pruneLoop(ctx context.Context, reg *registry.Registry, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(max(retention/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.Prune(retention); n > 0 {
				logger.Info("pruned finished scans", "count", n)
			}
		}
	}
}
