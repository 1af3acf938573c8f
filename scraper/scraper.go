package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-books/config"
	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/aluiziolira/go-scrape-books/parser"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Scraper discovers every book through category pagination and fetches each
// detail page once.
type Scraper struct {
	cfg       *config.Config
	fetcher   PageFetcher
	extractor PageExtractor
	metrics   Metrics
	logger    *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithFetcher replaces the colly fetcher.
func WithFetcher(f PageFetcher) Option {
	return func(s *Scraper) {
		s.fetcher = f
	}
}

// WithExtractor replaces the goquery extractor.
func WithExtractor(e PageExtractor) Option {
	return func(s *Scraper) {
		s.extractor = e
	}
}

// WithMetrics sets the metrics sink. Defaults to NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(s *Scraper) {
		s.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		s.logger = l
	}
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	s := &Scraper{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NoopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.extractor == nil {
		s.extractor = parser.NewExtractor()
	}
	if s.fetcher == nil {
		fetcher, err := NewCollyFetcher(cfg, s.metrics)
		if err != nil {
			return nil, err
		}
		s.fetcher = fetcher
	}
	return s, nil
}

// Run executes one full scrape. It fails only when the catalog root cannot be
// fetched or lists no categories, or when ctx is cancelled during discovery;
// per-book and per-category failures are reported in the result.
func (s *Scraper) Run(ctx context.Context) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))

	categories, err := s.categories(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetCategories(len(categories))
	logger.Info("categories found", slog.Int("count", len(categories)))

	phase := time.Now()
	walks, categoryErrors, err := s.discover(ctx, categories, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("categories processed", slog.Duration("duration", time.Since(phase)))

	links := make([][]string, len(walks))
	for i, w := range walks {
		links[i] = w.Links
	}
	urls := ResolveAddresses(s.cfg.BaseURL, links)
	s.metrics.SetBooksFound(len(urls))
	logger.Info("books found", slog.Int("unique", len(urls)))

	phase = time.Now()
	scheduler := NewScheduler(s.fetcher, s.extractor, s.cfg.Concurrency, s.cfg.Timeout)
	aggregator := NewAggregator(s.metrics, logger, s.cfg.ProgressEvery, s.cfg.LogItems)
	tally := aggregator.Consume(scheduler.Run(ctx, urls), len(urls))
	logger.Info("books processed", slog.Duration("duration", time.Since(phase)))

	end := time.Now()
	elapsed := end.Sub(start)
	s.metrics.SetScrapeDuration(elapsed)

	return &models.ScrapeResult{
		Books: tally.Books,
		Summary: models.RunSummary{
			RunID:           runID,
			CategoriesFound: len(categories),
			AddressesFound:  len(urls),
			ItemsSucceeded:  tally.Succeeded,
			ItemsFailed:     tally.Failed,
			Elapsed:         elapsed,
		},
		StartTime:      start,
		EndTime:        end,
		FailedURLs:     tally.FailedURLs,
		ErrorsByType:   tally.ErrorsByType,
		CategoryErrors: categoryErrors,
	}, nil
}

func (s *Scraper) categories(ctx context.Context) ([]models.Category, error) {
	root := s.cfg.BaseWithSlash()
	body, err := s.fetcher.Fetch(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog root: %w", err)
	}

	raw, err := s.extractor.Categories(body)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("catalog root %s: %w", root, ErrNoCategories)
	}

	categories := make([]models.Category, 0, len(raw))
	for _, c := range raw {
		abs, err := resolveAgainst(root, c.URL)
		if err != nil {
			s.logger.Warn("skipping category with bad link",
				slog.String("category", c.Name),
				slog.String("href", c.URL),
				slog.Any("error", err),
			)
			continue
		}
		categories = append(categories, models.Category{Name: c.Name, URL: abs})
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("catalog root %s: %w", root, ErrNoCategories)
	}
	return categories, nil
}

// discover walks all categories concurrently. Results keep the category
// order of the catalog root regardless of completion order, so the later
// dedup is deterministic.
func (s *Scraper) discover(ctx context.Context, categories []models.Category, logger *slog.Logger) ([]CategoryLinks, map[string]error, error) {
	paginator := NewPaginator(s.fetcher, s.extractor, s.cfg.MaxCategoryPages, logger)

	walks := make([]CategoryLinks, len(categories))
	errs := make([]error, len(categories))

	var g errgroup.Group
	g.SetLimit(max(1, min(len(categories), s.cfg.CategoryParallelism)))
	for i, category := range categories {
		g.Go(func() error {
			walks[i], errs[i] = paginator.Walk(ctx, category)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("category discovery: %w", err)
	}

	categoryErrors := make(map[string]error)
	for i, w := range walks {
		s.metrics.SetCategoryBooks(w.Category.Name, len(w.Links))
		if errs[i] != nil {
			categoryErrors[w.Category.Name] = errs[i]
			logger.Error("category walk failed",
				slog.String("category", w.Category.Name),
				slog.Int("books", len(w.Links)),
				slog.Any("error", errs[i]),
			)
			continue
		}
		logger.Info("category walked",
			slog.String("category", w.Category.Name),
			slog.Int("books", len(w.Links)),
		)
	}
	return walks, categoryErrors, nil
}
