package scraper

import (
	"log/slog"

	"github.com/aluiziolira/go-scrape-books/models"
)

// Tally is what the aggregator accumulated from one outcome stream.
type Tally struct {
	Books        []*models.Book
	Succeeded    int
	Failed       int
	FailedURLs   []string
	ErrorsByType map[string]int
}

// Completed returns the number of outcomes consumed.
func (t *Tally) Completed() int {
	return t.Succeeded + t.Failed
}

// Aggregator folds fetch outcomes into the final record set. It is meant to
// run on a single goroutine that drains the scheduler's channel, which makes
// it the only writer of the tally.
type Aggregator struct {
	metrics       Metrics
	logger        *slog.Logger
	progressEvery int
	logItems      bool
}

// NewAggregator returns an Aggregator that logs progress every progressEvery
// completions and, when logItems is set, one line per parsed book.
func NewAggregator(metrics Metrics, logger *slog.Logger, progressEvery int, logItems bool) *Aggregator {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if progressEvery <= 0 {
		progressEvery = 50
	}
	return &Aggregator{
		metrics:       metrics,
		logger:        logger,
		progressEvery: progressEvery,
		logItems:      logItems,
	}
}

// Consume drains outcomes until the channel is closed.
func (a *Aggregator) Consume(outcomes <-chan models.FetchOutcome, total int) *Tally {
	tally := &Tally{
		Books:        make([]*models.Book, 0, total),
		ErrorsByType: make(map[string]int),
	}

	for outcome := range outcomes {
		a.add(tally, outcome)

		if done := tally.Completed(); done%a.progressEvery == 0 && done != total {
			a.logger.Info("books progress",
				slog.Int("completed", done),
				slog.Int("total", total),
				slog.Int("failed", tally.Failed),
			)
		}
	}

	a.logger.Info("books progress",
		slog.Int("completed", tally.Completed()),
		slog.Int("total", total),
		slog.Int("failed", tally.Failed),
	)
	return tally
}

func (a *Aggregator) add(tally *Tally, outcome models.FetchOutcome) {
	if !outcome.Failed() {
		tally.Books = append(tally.Books, outcome.Book)
		tally.Succeeded++
		a.metrics.IncBooksParsed()
		if a.logItems {
			a.logger.Info("book parsed",
				slog.String("title", outcome.Book.Title),
				slog.String("url", outcome.URL),
			)
		}
		return
	}

	cause := outcome.Cause
	if cause == "" {
		cause = models.CauseTransport
	}
	tally.Failed++
	tally.FailedURLs = append(tally.FailedURLs, outcome.URL)
	tally.ErrorsByType[ErrorTypeLabel(outcome.Err)]++
	a.metrics.IncBooksErrors(cause)
	a.logger.Error("book failed",
		slog.String("url", outcome.URL),
		slog.String("cause", cause),
		slog.Any("error", outcome.Err),
	)
}
