package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/aluiziolira/go-scrape-books/config"
	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/aluiziolira/go-scrape-books/pipeline"
	"github.com/aluiziolira/go-scrape-books/scraper"
	"github.com/aluiziolira/go-scrape-books/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewMain().Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Now stamps default output filenames.
	Now func() time.Time
	// Scraper options appended after the defaults, used by tests.
	ScraperOptions []scraper.Option
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{Now: time.Now}
}

// Run parses args, scrapes the catalog and writes the outputs. Only start-up
// failures are returned; failed books are reported in the summary.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("scraper"),
		kong.Description("Crawl a book catalog and export every book it lists"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		return fmt.Errorf("create parser: %w", err)
	}

	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			_, _ = parser.Parse([]string{"--help"})
			return nil
		}
	}
	if _, err := parser.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	cli.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Verbose, stdout, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Int("category_parallelism", cfg.CategoryParallelism),
		slog.String("format", cfg.OutputFormat),
	)

	metrics := scraper.NewPromMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = startMetricsServer(cfg.MetricsAddr, metrics, logger)
		defer shutdownMetricsServer(metricsServer, logger)
	}

	opts := append([]scraper.Option{
		scraper.WithMetrics(metrics),
		scraper.WithLogger(logger),
	}, m.ScraperOptions...)
	s, err := scraper.NewScraper(cfg, opts...)
	if err != nil {
		return fmt.Errorf("initialise scraper: %w", err)
	}

	result, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	outputs, err := m.write(cfg, result, logger)
	if err != nil {
		return err
	}

	printSummary(stdout, result, outputs)

	if metricsServer != nil && cfg.MetricsLinger > 0 {
		logger.Info("keeping metrics endpoint up",
			slog.String("addr", cfg.MetricsAddr),
			slog.Duration("linger", cfg.MetricsLinger),
		)
		select {
		case <-time.After(cfg.MetricsLinger):
		case <-ctx.Done():
		}
	}
	return nil
}

// outputSet records what the writer produced.
type outputSet struct {
	paths []string
	stats pipeline.Stats
}

func (m *Main) write(cfg *config.Config, result *models.ScrapeResult, logger *slog.Logger) (outputSet, error) {
	var out outputSet

	writer, paths, err := createWriter(cfg, result.Summary.RunID, m.Now())
	if err != nil {
		return out, fmt.Errorf("create writer: %w", err)
	}
	out.paths = paths

	// The scrape is already finished, so a late signal must not discard its records.
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)
	processErr := p.Process(result.Books...)
	closeErr := p.Close()
	out.stats = p.Stats()

	if err := errors.Join(processErr, closeErr); err != nil {
		writer.Close()
		return out, fmt.Errorf("write output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return out, fmt.Errorf("close output: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return out, fmt.Errorf("validate output: %w", err)
	}

	if len(out.stats.Rejected) > 0 {
		logger.Warn("records rejected by pipeline", slog.Any("rejected", out.stats.Rejected))
	}
	if out.stats.Written != int64(result.Summary.ItemsSucceeded) {
		logger.Warn("written records differ from succeeded items",
			slog.Int64("written", out.stats.Written),
			slog.Int("succeeded", result.Summary.ItemsSucceeded),
		)
	}
	logger.Info("output written",
		slog.String("paths", strings.Join(paths, ", ")),
		slog.Int64("records", out.stats.Written),
	)
	return out, nil
}

// createWriter builds the writer for cfg.OutputFormat. An empty OutputFile
// becomes data/books_<timestamp>.<ext>; dual mode writes a .json sibling of
// the CSV path.
func createWriter(cfg *config.Config, runID string, now time.Time) (pipeline.OutputWriter, []string, error) {
	filename := cfg.OutputFile
	if filename == "" {
		filename = defaultOutputPath(cfg.OutputFormat, now)
	}

	switch cfg.OutputFormat {
	case "json":
		w, err := pipeline.NewJSONWriter(filename)
		return w, []string{filename}, err
	case "csv":
		w, err := pipeline.NewCSVWriter(filename)
		return w, []string{filename}, err
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json"
		w, err := pipeline.NewDualWriter(filename, jsonFilename)
		return w, []string{filename, jsonFilename}, err
	case "sqlite":
		if dir := filepath.Dir(filename); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create directory %q: %w", dir, err)
			}
		}
		w, err := store.NewSQLiteWriter(filename, runID)
		return w, []string{filename}, err
	default:
		return nil, nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func defaultOutputPath(format string, now time.Time) string {
	ext := "csv"
	switch format {
	case "json":
		ext = "json"
	case "sqlite":
		ext = "db"
	}
	return filepath.Join("data", fmt.Sprintf("books_%s.%s", now.Format("20060102_150405"), ext))
}

func startMetricsServer(addr string, metrics *scraper.PromMetrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, result *models.ScrapeResult, outputs outputSet) {
	summary := result.Summary
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")
	fmt.Fprintf(w, "  Run ID:        %s\n", summary.RunID)
	fmt.Fprintf(w, "  Categories:    %d\n", summary.CategoriesFound)
	fmt.Fprintf(w, "  Books found:   %d\n", summary.AddressesFound)
	fmt.Fprintf(w, "  Succeeded:     %d\n", summary.ItemsSucceeded)
	fmt.Fprintf(w, "  Failed:        %d\n", summary.ItemsFailed)

	successRate := 0.0
	if summary.AddressesFound > 0 {
		successRate = float64(summary.ItemsSucceeded) / float64(summary.AddressesFound) * 100
	}
	fmt.Fprintf(w, "  Success rate:  %.2f%%\n", successRate)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if len(result.CategoryErrors) > 0 {
		names := make([]string, 0, len(result.CategoryErrors))
		for name := range result.CategoryErrors {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "  Category errs: %s\n", strings.Join(names, ", "))
	}
	if len(outputs.stats.Rejected) > 0 {
		fmt.Fprintf(w, "  Rejected:      %v\n", outputs.stats.Rejected)
	}

	itemsPerSec := 0.0
	if secs := summary.ElapsedSeconds(); secs > 0 {
		itemsPerSec = float64(summary.ItemsSucceeded) / secs
	}
	fmt.Fprintf(w, "  Duration:      %.2fs\n", summary.ElapsedSeconds())
	fmt.Fprintf(w, "  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Fprintf(w, "  Output:        %s\n", strings.Join(outputs.paths, ", "))
	fmt.Fprintln(w, separator)
}

// newLogger writes text to terminals and JSON otherwise. With logFile set,
// JSON records go to both out and the file.
func newLogger(verbose bool, out io.Writer, logFile string) (*slog.Logger, func(), error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
	opts := &slog.HandlerOptions{Level: level}

	if logFile == "" {
		if f, ok := out.(*os.File); ok && isTerminal(f) {
			return slog.New(slog.NewTextHandler(out, opts)), func() {}, nil
		}
		return slog.New(slog.NewJSONHandler(out, opts)), func() {}, nil
	}

	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	handler := slog.NewJSONHandler(io.MultiWriter(out, f), opts)
	return slog.New(handler), func() { f.Close() }, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
