package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/aluiziolira/go-scrape-books/parser"
	"golang.org/x/sync/semaphore"
)

// Scheduler fetches and extracts detail pages with at most limit units of
// work in flight.
type Scheduler struct {
	fetcher   PageFetcher
	extractor PageExtractor
	limit     int
	timeout   time.Duration
}

// NewScheduler returns a Scheduler. A limit below 1 is treated as 1; a zero
// timeout leaves the deadline to the fetcher.
func NewScheduler(fetcher PageFetcher, extractor PageExtractor, limit int, timeout time.Duration) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{
		fetcher:   fetcher,
		extractor: extractor,
		limit:     limit,
		timeout:   timeout,
	}
}

// Run schedules one unit of work per URL and streams the outcomes as they
// complete. Every URL yields exactly one outcome; the channel is closed after
// the last one. URLs not yet started when ctx is cancelled yield a canceled
// failure.
func (s *Scheduler) Run(ctx context.Context, urls []string) <-chan models.FetchOutcome {
	out := make(chan models.FetchOutcome, s.limit)
	sem := semaphore.NewWeighted(int64(s.limit))

	go func() {
		var wg sync.WaitGroup
		for _, u := range urls {
			if err := sem.Acquire(ctx, 1); err != nil {
				out <- failure(u, models.CauseCanceled, err)
				continue
			}
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				// The slot is held until the outcome is handed over, so a slow
				// consumer throttles new fetches.
				defer sem.Release(1)
				out <- s.process(ctx, u)
			}(u)
		}
		wg.Wait()
		close(out)
	}()

	return out
}

func (s *Scheduler) process(ctx context.Context, u string) (outcome models.FetchOutcome) {
	if err := ctx.Err(); err != nil {
		return failure(u, models.CauseCanceled, err)
	}

	fctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	body, err := s.fetcher.Fetch(fctx, u)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return failure(u, models.CauseCanceled, err)
		}
		return failure(u, models.CauseTransport, err)
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = failure(u, models.CauseExtraction, &parser.ExtractionError{
				Field: "book",
				Err:   fmt.Errorf("extractor panic: %v", r),
			})
		}
	}()

	book, err := s.extractor.Book(body, u)
	if err != nil {
		var extractErr *parser.ExtractionError
		if !errors.As(err, &extractErr) {
			err = &parser.ExtractionError{Field: "book", Err: err}
		}
		return failure(u, models.CauseExtraction, err)
	}
	if book == nil {
		return failure(u, models.CauseExtraction, &parser.ExtractionError{Field: "book"})
	}
	return models.FetchOutcome{URL: u, Book: book}
}

func failure(u, cause string, err error) models.FetchOutcome {
	return models.FetchOutcome{URL: u, Err: err, Cause: cause}
}
