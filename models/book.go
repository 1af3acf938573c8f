// Package models defines data structures for the scraper.
package models

import "time"

// Failure cause tags carried by a FetchOutcome.
const (
	CauseTransport  = "transport"
	CauseExtraction = "extraction"
	CauseCanceled   = "canceled"
)

// Category is a named grouping on the catalog root with its own paginated listing.
type Category struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Book represents the attributes read from one book detail page.
type Book struct {
	Title        string `csv:"title" json:"title"`
	Category     string `csv:"category" json:"category"`
	UPC          string `csv:"upc" json:"upc"`
	ProductType  string `csv:"product_type" json:"product_type"`
	PriceExclTax string `csv:"price_excl_tax" json:"price_excl_tax"`
	PriceInclTax string `csv:"price_inc_tax" json:"price_inc_tax"`
	Tax          string `csv:"tax" json:"tax"`
	Availability string `csv:"availability" json:"availability"`
	NumReviews   string `csv:"num_reviews" json:"num_reviews"`
	URL          string `csv:"-" json:"url,omitempty"`
}

// FetchOutcome is the result of fetching and extracting one detail page.
// Exactly one of Book and Err is set.
type FetchOutcome struct {
	URL   string
	Book  *Book
	Err   error
	Cause string
}

// Failed reports whether the outcome carries an error.
func (o FetchOutcome) Failed() bool {
	return o.Err != nil
}

// RunSummary holds the counters of a finished run.
type RunSummary struct {
	RunID           string
	CategoriesFound int
	AddressesFound  int
	ItemsSucceeded  int
	ItemsFailed     int
	Elapsed         time.Duration
}

// ElapsedSeconds returns the run duration in seconds.
func (s RunSummary) ElapsedSeconds() float64 {
	return s.Elapsed.Seconds()
}

// ScrapeResult holds the overall result of a scraping operation
type ScrapeResult struct {
	Books          []*Book
	Summary        RunSummary
	StartTime      time.Time
	EndTime        time.Time
	FailedURLs     []string
	ErrorsByType   map[string]int
	CategoryErrors map[string]error
}
