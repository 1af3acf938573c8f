package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-books/models"
)

// ExtractionError reports a page that lacks an expected structure.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("extract %s: not found", e.Field)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ValidateBook ensures the extractor captured the required fields.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return &ExtractionError{Field: "book", Err: fmt.Errorf("book is nil")}
	}
	if strings.TrimSpace(b.Title) == "" {
		return &ExtractionError{Field: "title"}
	}
	if strings.TrimSpace(b.UPC) == "" {
		return &ExtractionError{Field: "upc", Err: fmt.Errorf("book missing upc for %s", b.Title)}
	}
	if strings.TrimSpace(b.PriceInclTax) == "" {
		return &ExtractionError{Field: "price_inc_tax", Err: fmt.Errorf("book missing price for %s", b.Title)}
	}
	return nil
}

// NormalizeText collapses runs of whitespace and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeHref strips surrounding whitespace and any fragment from a link.
func NormalizeHref(href string) string {
	href = strings.TrimSpace(href)
	if idx := strings.Index(href, "#"); idx != -1 {
		href = href[:idx]
	}
	return href
}
