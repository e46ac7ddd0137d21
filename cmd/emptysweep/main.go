package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"emptysweep/internal/cleanup"
	"emptysweep/internal/config"
	"emptysweep/internal/database"
	"emptysweep/internal/exitcodes"
	"emptysweep/internal/logging"
	"emptysweep/internal/metrics"
)

var errTooManyArgs = errors.New("at most one root directory may be given")

func main() {
	// Cancel the sweep on SIGINT/SIGTERM; the walk stops at the next directory
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	dryRun     bool
	excludes   []string
	match      string
	dbPath     string
	textfile   string
	quiet      bool
	root       string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("emptysweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Report what would be removed without deleting anything")
	fs.Func("exclude", "Extra directory name to exclude (repeatable)", func(s string) error {
		opts.excludes = append(opts.excludes, s)
		return nil
	})
	fs.StringVar(&opts.match, "match", "", "Exclusion match mode: substring or segment")
	fs.StringVar(&opts.dbPath, "db", "", "Path to deletion history database")
	fs.StringVar(&opts.textfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	fs.BoolVar(&opts.quiet, "quiet", false, "Suppress log output on stderr")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: emptysweep [flags] [root]\n\n")
		fmt.Fprintf(fs.Output(), "Removes zero-length files and empty directories below root (default: current directory).\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		opts.root = wd
	case 1:
		opts.root = fs.Arg(0)
	default:
		fs.Usage()
		return nil, errTooManyArgs
	}

	return opts, nil
}

// loadConfig reads the configuration file, if any, and lays the flags over it
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	if opts.dryRun {
		cfg.DryRun = true
	}
	if opts.match != "" {
		cfg.MatchMode = opts.match
	}
	cfg.ExtraExcludes = append(cfg.ExtraExcludes, opts.excludes...)
	if opts.dbPath != "" {
		cfg.DatabasePath = filepath.Clean(opts.dbPath)
	}
	if opts.textfile != "" {
		cfg.Metrics.Textfile = filepath.Clean(opts.textfile)
	}

	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitcodes.Success
		}
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitcodes.InvalidUsage
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to load config: %v\n", err)
		return exitcodes.InvalidUsage
	}

	filter, err := cfg.Filter()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Invalid exclusion settings: %v\n", err)
		return exitcodes.InvalidUsage
	}

	logger := logging.NewWithConfig(cfg, opts.quiet)
	if cfg.DryRun {
		logger.Println("DRY RUN MODE: No files will be deleted")
	}

	// Initialize database for deletion history
	var recorder cleanup.Recorder
	if cfg.DatabasePath != "" {
		logger.Printf("Opening deletion database: %s", cfg.DatabasePath)
		db, err := database.NewDeletionDB(cfg.DatabasePath)
		if err != nil {
			logger.Printf("ERROR: Failed to open database: %v", err)
			return exitcodes.RuntimeError
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Printf("ERROR: Failed to close database: %v", err)
			}
		}()
		recorder = db
	}

	cleaner := cleanup.NewCleaner(logger, filter, cfg.DryRun, recorder)
	cleaner.SetProtectedPaths(cfg.ProtectedPaths)

	removed, runErr := cleaner.Run(ctx, opts.root)
	exportMetrics(cfg, logger)

	if runErr != nil {
		logger.Printf("ERROR: Sweep failed: %v", runErr)
		if opts.quiet {
			fmt.Fprintf(stderr, "ERROR: %v\n", runErr)
		}
		return exitcodes.RuntimeError
	}

	if err := cleanup.WriteReport(stdout, removed); err != nil {
		logger.Printf("ERROR: Failed to write report: %v", err)
		return exitcodes.RuntimeError
	}

	return exitcodes.Success
}

// exportMetrics publishes the run's metrics; failures are logged, not fatal
func exportMetrics(cfg *config.Config, logger *log.Logger) {
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Printf("ERROR: %v", err)
		}
	}
	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			logger.Printf("ERROR: %v", err)
		}
	}
}
