package main

import (
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-books/config"
)

// CLI defines the command-line interface structure for Kong. Zero values
// leave the config file (or the built-in default) in charge.
type CLI struct {
	Config string `short:"c" type:"path" env:"SCRAPER_CONFIG" help:"YAML config file"`

	BaseURL             string        `name:"base-url" env:"SCRAPER_BASE_URL" help:"Catalog root to crawl"`
	Concurrency         int           `short:"k" env:"SCRAPER_CONCURRENCY" help:"Detail pages fetched at once"`
	CategoryParallelism int           `name:"category-parallel" env:"SCRAPER_CATEGORY_PARALLEL" help:"Categories walked at once"`
	MaxCategoryPages    int           `name:"max-category-pages" env:"SCRAPER_MAX_CATEGORY_PAGES" help:"Listing pages per category before giving up"`
	ProgressEvery       int           `name:"progress-every" env:"SCRAPER_PROGRESS_EVERY" help:"Log progress every N completed books"`
	LogItems            bool          `name:"log-items" env:"SCRAPER_LOG_ITEMS" help:"Log one line per parsed book"`
	Timeout             time.Duration `short:"t" env:"SCRAPER_TIMEOUT" help:"Per-request timeout"`
	Delay               time.Duration `env:"SCRAPER_DELAY" help:"Delay between requests"`
	RandomDelay         time.Duration `name:"random-delay" env:"SCRAPER_RANDOM_DELAY" help:"Random jitter added to delay"`
	UserAgent           string        `name:"user-agent" env:"SCRAPER_USER_AGENT" help:"User-Agent header"`

	Output    string `short:"o" type:"path" env:"SCRAPER_OUTPUT" help:"Output file (default data/books_<timestamp>.<ext>)"`
	Format    string `short:"f" env:"SCRAPER_FORMAT" help:"Output format: csv, json, dual or sqlite"`
	BatchSize int    `name:"batch-size" env:"SCRAPER_BATCH_SIZE" help:"Records per output write"`

	MetricsAddr   string        `name:"metrics-addr" env:"SCRAPER_METRICS_ADDR" help:"Prometheus listen address (e.g. :9090)"`
	MetricsLinger time.Duration `name:"metrics-linger" env:"SCRAPER_METRICS_LINGER" help:"Keep the metrics endpoint up this long after the run"`

	LogFile string `name:"log-file" type:"path" env:"SCRAPER_LOG_FILE" help:"Also write logs to this file"`
	Verbose bool   `short:"v" env:"SCRAPER_VERBOSE" help:"Enable debug logging"`
}

// apply overlays every flag that was set on cfg.
func (c *CLI) apply(cfg *config.Config) {
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.Concurrency != 0 {
		cfg.Concurrency = c.Concurrency
	}
	if c.CategoryParallelism != 0 {
		cfg.CategoryParallelism = c.CategoryParallelism
	}
	if c.MaxCategoryPages != 0 {
		cfg.MaxCategoryPages = c.MaxCategoryPages
	}
	if c.ProgressEvery != 0 {
		cfg.ProgressEvery = c.ProgressEvery
	}
	if c.LogItems {
		cfg.LogItems = true
	}
	if c.Timeout != 0 {
		cfg.Timeout = c.Timeout
	}
	if c.Delay != 0 {
		cfg.Delay = c.Delay
	}
	if c.RandomDelay != 0 {
		cfg.RandomDelay = c.RandomDelay
	}
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	if c.Output != "" {
		cfg.OutputFile = c.Output
	}
	if c.Format != "" {
		cfg.OutputFormat = strings.ToLower(c.Format)
	}
	if c.BatchSize != 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.MetricsAddr != "" {
		cfg.MetricsAddr = c.MetricsAddr
	}
	if c.MetricsLinger != 0 {
		cfg.MetricsLinger = c.MetricsLinger
	}
	if c.LogFile != "" {
		cfg.LogFile = c.LogFile
	}
	if c.Verbose {
		cfg.Verbose = true
	}
}
