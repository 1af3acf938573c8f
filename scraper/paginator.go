package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/aluiziolira/go-scrape-books/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// PageExtractor reads the structures the scraper needs out of raw page bodies.
// Implementations must be pure functions of their input.
type PageExtractor interface {
	Categories(body string) ([]models.Category, error)
	ItemLinks(body string) ([]string, error)
	NextPageLink(body string) (string, bool)
	Book(body, pageURL string) (*models.Book, error)
}

// CategoryLinks is the result of walking one category.
type CategoryLinks struct {
	Category models.Category
	Links    []string
	Pages    int
}

// Paginator walks the "next" chain of a category listing.
type Paginator struct {
	fetcher   PageFetcher
	extractor PageExtractor
	maxPages  int
	logger    *slog.Logger
}

// NewPaginator returns a Paginator that stops with ErrPageLimit after maxPages pages.
func NewPaginator(fetcher PageFetcher, extractor PageExtractor, maxPages int, logger *slog.Logger) *Paginator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Paginator{
		fetcher:   fetcher,
		extractor: extractor,
		maxPages:  maxPages,
		logger:    logger,
	}
}

// Walk fetches every page of the category until no next link remains and
// returns the item links in page order. On error the links gathered so far
// are returned alongside it.
func (p *Paginator) Walk(ctx context.Context, category models.Category) (CategoryLinks, error) {
	result := CategoryLinks{Category: category}

	visited, err := lru.New[string, struct{}](p.maxPages)
	if err != nil {
		return result, fmt.Errorf("visited set: %w", err)
	}

	pageURL := category.URL
	for {
		if result.Pages >= p.maxPages {
			return result, fmt.Errorf("category %q after %d pages: %w", category.Name, result.Pages, ErrPageLimit)
		}
		visited.Add(pageURL, struct{}{})

		body, err := p.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return result, fmt.Errorf("category %q: %w", category.Name, err)
		}
		result.Pages++

		links, err := p.extractor.ItemLinks(body)
		if err != nil {
			return result, fmt.Errorf("category %q page %s: %w", category.Name, pageURL, err)
		}
		result.Links = append(result.Links, links...)

		next, ok := p.extractor.NextPageLink(body)
		if !ok {
			break
		}
		nextURL, err := resolveAgainst(pageURL, next)
		if err != nil {
			return result, fmt.Errorf("category %q next link %q: %w", category.Name, next, err)
		}
		if visited.Contains(nextURL) {
			return result, fmt.Errorf("category %q next link %s: %w", category.Name, nextURL, ErrPaginationCycle)
		}
		pageURL = nextURL
	}

	p.logger.Debug("category walked",
		slog.String("category", category.Name),
		slog.Int("pages", result.Pages),
		slog.Int("books", len(result.Links)),
	)
	return result, nil
}

func resolveAgainst(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
