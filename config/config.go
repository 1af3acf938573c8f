package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL             string        `yaml:"baseUrl"`
	Concurrency         int           `yaml:"concurrency"`
	CategoryParallelism int           `yaml:"categoryParallelism"`
	MaxCategoryPages    int           `yaml:"maxCategoryPages"`
	ProgressEvery       int           `yaml:"progressEvery"`
	LogItems            bool          `yaml:"logItems"`
	Timeout             time.Duration `yaml:"timeout"`
	Delay               time.Duration `yaml:"delay"`
	RandomDelay         time.Duration `yaml:"randomDelay"`
	UserAgent           string        `yaml:"userAgent"`
	OutputFile          string        `yaml:"outputFile"`
	OutputFormat        string        `yaml:"outputFormat"` // csv, json, dual, or sqlite
	BatchSize           int           `yaml:"batchSize"`
	MetricsAddr         string        `yaml:"metricsAddr"`
	MetricsLinger       time.Duration `yaml:"metricsLinger"`
	LogFile             string        `yaml:"logFile"`
	Verbose             bool          `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:             "https://books.toscrape.com/",
		Concurrency:         10,
		CategoryParallelism: 16,
		MaxCategoryPages:    100,
		ProgressEvery:       50,
		LogItems:            false,
		Timeout:             15 * time.Second,
		Delay:               0,
		RandomDelay:         0,
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36",
		OutputFile:          "",
		OutputFormat:        "dual",
		BatchSize:           64,
		MetricsAddr:         "",
		MetricsLinger:       0,
		LogFile:             "",
		Verbose:             false,
	}
}

// Load returns the defaults overlaid with any non-zero values from the YAML
// file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.merge(&fileCfg)
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if o.Concurrency != 0 {
		c.Concurrency = o.Concurrency
	}
	if o.CategoryParallelism != 0 {
		c.CategoryParallelism = o.CategoryParallelism
	}
	if o.MaxCategoryPages != 0 {
		c.MaxCategoryPages = o.MaxCategoryPages
	}
	if o.ProgressEvery != 0 {
		c.ProgressEvery = o.ProgressEvery
	}
	if o.LogItems {
		c.LogItems = true
	}
	if o.Timeout != 0 {
		c.Timeout = o.Timeout
	}
	if o.Delay != 0 {
		c.Delay = o.Delay
	}
	if o.RandomDelay != 0 {
		c.RandomDelay = o.RandomDelay
	}
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
	if o.OutputFile != "" {
		c.OutputFile = o.OutputFile
	}
	if o.OutputFormat != "" {
		c.OutputFormat = o.OutputFormat
	}
	if o.BatchSize != 0 {
		c.BatchSize = o.BatchSize
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
	if o.MetricsLinger != 0 {
		c.MetricsLinger = o.MetricsLinger
	}
	if o.LogFile != "" {
		c.LogFile = o.LogFile
	}
	if o.Verbose {
		c.Verbose = true
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.CategoryParallelism <= 0 {
		return fmt.Errorf("category parallelism must be positive")
	}
	if c.MaxCategoryPages <= 0 {
		return fmt.Errorf("max category pages must be positive")
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" && c.OutputFormat != "sqlite" {
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MetricsLinger < 0 {
		return fmt.Errorf("metrics linger cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// BaseWithSlash returns BaseURL guaranteed to end in "/".
func (c *Config) BaseWithSlash() string {
	if len(c.BaseURL) > 0 && c.BaseURL[len(c.BaseURL)-1] == '/' {
		return c.BaseURL
	}
	return c.BaseURL + "/"
}
