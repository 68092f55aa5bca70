package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/config"
	"github.com/dastanaron/browsershell/internal/httpclient"
	"github.com/dastanaron/browsershell/internal/logging"
	"github.com/dastanaron/browsershell/internal/monitoring"
	"github.com/dastanaron/browsershell/internal/pixel"
	"github.com/dastanaron/browsershell/internal/repository"
)

const version = "0.1.0"

// env holds what every subcommand shares. It is filled before a subcommand
// runs and released after it returns.
type env struct {
	out io.Writer

	dbPath      string
	dataDir     string
	metricsAddr string
	verbose     bool

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	repo     *repository.SQLiteRepository
	client   *httpclient.Client
	server   *http.Server
}

func newRootCommand(out io.Writer) *cobra.Command {
	e := &env{out: out}

	root := &cobra.Command{
		Use:   "browsershell",
		Short: "Browser data and privacy tools for the terminal",
		Long: `browsershell manages a local browser profile from the command line:
bookmarks and favorites, content blocking rules, downloads, text zoom,
sync error state, onboarding dialogs, the autofill vault and usage pixels.

Run without a subcommand to open the bookmark browser.`,
		Version:            version,
		SilenceUsage:       true,
		PersistentPreRunE:  func(*cobra.Command, []string) error { return e.open() },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error { return e.close(cmd.Context()) },
		RunE:               func(*cobra.Command, []string) error { return e.runUI() },
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&e.dbPath, "db", "", "Path to database file (default: <data-dir>/browsershell.db)")
	root.PersistentFlags().StringVar(&e.dataDir, "data-dir", "", "Directory for caches and queues (default: ~/.browsershell)")
	root.PersistentFlags().StringVar(&e.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newUICommand(e),
		newImportCommand(e),
		newExportCommand(e),
		newClearDoublesCommand(e),
		newSearchCommand(e),
		newFavoriteCommand(e),
		newRulesCommand(e),
		newPixelsCommand(e),
		newDownloadCommand(e),
		newZoomCommand(e),
		newSyncCommand(e),
		newOnboardingCommand(e),
		newAutofillCommand(e),
	)
	return root
}

func (e *env) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if e.dataDir != "" {
		cfg.WithDataDir(e.dataDir)
	}
	if e.dbPath != "" {
		cfg.WithDBPath(e.dbPath)
	}
	if e.verbose {
		cfg.Logging.Level = "debug"
	}
	e.cfg = cfg

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	e.logger = logger

	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	e.registry = prometheus.NewRegistry()
	e.metrics = monitoring.NewMetrics(e.registry)
	if e.metricsAddr != "" {
		e.serveMetrics()
	}

	repo, err := repository.NewSQLiteRepository(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	e.repo = repo

	opts := httpclient.DefaultOptions()
	opts.RatePerSec = cfg.Pixel.RatePerSec
	e.client = httpclient.New(opts)

	e.logger.Debug("environment ready",
		zap.String("db", cfg.DBPath),
		zap.String("data_dir", cfg.DataDir))
	return nil
}

func (e *env) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: e.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	e.logger.Info("serving metrics", zap.String("addr", e.metricsAddr))
}

func (e *env) close(ctx context.Context) error {
	var errs []error
	if e.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		errs = append(errs, e.server.Shutdown(shutdownCtx))
	}
	if e.repo != nil {
		errs = append(errs, e.repo.Close())
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
	return errors.Join(errs...)
}

// pixelFirer returns the firer for the configured endpoint.
func (e *env) pixelFirer() *pixel.Firer {
	return pixel.NewFirer(e.cfg.Pixel, e.client, e.logger, e.metrics)
}

func (e *env) pixelQueue() *pixel.Queue {
	return pixel.NewQueue(filepath.Join(e.cfg.DataDir, "pixels"))
}
