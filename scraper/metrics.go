package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives observations from the scraper core. Implementations must
// be safe for concurrent use.
type Metrics interface {
	ObserveRequest(d time.Duration, err error)
	SetCategories(n int)
	SetCategoryBooks(category string, n int)
	SetBooksFound(n int)
	IncBooksParsed()
	IncBooksErrors(cause string)
	SetScrapeDuration(d time.Duration)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRequest(time.Duration, error) {}
func (NoopMetrics) SetCategories(int)                    {}
func (NoopMetrics) SetCategoryBooks(string, int)         {}
func (NoopMetrics) SetBooksFound(int)                    {}
func (NoopMetrics) IncBooksParsed()                      {}
func (NoopMetrics) IncBooksErrors(string)                {}
func (NoopMetrics) SetScrapeDuration(time.Duration)      {}

var (
	_ Metrics = NoopMetrics{}
	_ Metrics = (*PromMetrics)(nil)
)

// PromMetrics bundles Prometheus collectors for the scraper.
type PromMetrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      prometheus.Counter
	RequestErrorsTotal *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	BooksParsedTotal   prometheus.Counter
	BooksErrorsTotal   *prometheus.CounterVec
	CategoriesCount    prometheus.Gauge
	BooksFoundTotal    prometheus.Gauge
	ScrapeDuration     prometheus.Gauge
	CategoryBooksCount *prometheus.GaugeVec
}

// NewPromMetrics constructs and registers all metrics on a dedicated registry.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
	)
	requestErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total failed HTTP requests by error type.",
		},
		[]string{"error_type"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	booksParsed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "books_parsed_total",
			Help: "Total number of book pages parsed successfully.",
		},
	)
	booksErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "books_errors_total",
			Help: "Total number of book pages that failed, by cause.",
		},
		[]string{"cause"},
	)
	categories := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "categories_count",
			Help: "Number of categories on the catalog root.",
		},
	)
	booksFound := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "books_found_total",
			Help: "Number of unique book addresses discovered.",
		},
	)
	duration := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrape_duration_seconds",
			Help: "Wall time of the last scrape run.",
		},
	)
	categoryBooks := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "category_books_count",
			Help: "Book links found per category.",
		},
		[]string{"category"},
	)

	registry.MustRegister(requests, requestErrors, requestDuration, booksParsed, booksErrors,
		categories, booksFound, duration, categoryBooks)

	return &PromMetrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestErrorsTotal: requestErrors,
		RequestDuration:    requestDuration,
		BooksParsedTotal:   booksParsed,
		BooksErrorsTotal:   booksErrors,
		CategoriesCount:    categories,
		BooksFoundTotal:    booksFound,
		ScrapeDuration:     duration,
		CategoryBooksCount: categoryBooks,
	}
}

// ObserveRequest records one HTTP request, its latency and, on failure, its error type.
func (m *PromMetrics) ObserveRequest(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.Inc()
	m.RequestDuration.Observe(d.Seconds())
	if err != nil {
		m.RequestErrorsTotal.WithLabelValues(ErrorTypeLabel(err)).Inc()
	}
}

// SetCategories sets the number of categories found.
func (m *PromMetrics) SetCategories(n int) {
	if m == nil {
		return
	}
	m.CategoriesCount.Set(float64(n))
}

// SetCategoryBooks sets the book link count of one category.
func (m *PromMetrics) SetCategoryBooks(category string, n int) {
	if m == nil {
		return
	}
	m.CategoryBooksCount.WithLabelValues(category).Set(float64(n))
}

// SetBooksFound sets the number of unique book addresses.
func (m *PromMetrics) SetBooksFound(n int) {
	if m == nil {
		return
	}
	m.BooksFoundTotal.Set(float64(n))
}

// IncBooksParsed increments the parsed books counter.
func (m *PromMetrics) IncBooksParsed() {
	if m == nil {
		return
	}
	m.BooksParsedTotal.Inc()
}

// IncBooksErrors increments the failed books counter for a cause tag.
func (m *PromMetrics) IncBooksErrors(cause string) {
	if m == nil {
		return
	}
	m.BooksErrorsTotal.WithLabelValues(cause).Inc()
}

// SetScrapeDuration records the total run time.
func (m *PromMetrics) SetScrapeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Set(d.Seconds())
}
