package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/jarcoal/httpmock"
)

// stubFetcher serves bodies from a map and tracks how many fetches overlap.
type stubFetcher struct {
	pages map[string]string
	fail  map[string]error
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu    sync.Mutex
	calls []string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", &FetchError{URL: url, Err: ctx.Err()}
		}
	}
	if err, ok := f.fail[url]; ok {
		return "", &FetchError{URL: url, Err: err}
	}
	body, ok := f.pages[url]
	if !ok {
		return "", &FetchError{URL: url, Err: ErrNotFound{Err: ErrHTTPStatus{StatusCode: 404}}}
	}
	return body, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// blockingFetcher never answers until its context ends.
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	<-ctx.Done()
	return "", &FetchError{URL: url, Err: classifyError(ctx.Err(), 0)}
}

// stubExtractor understands the tiny line format used by these tests:
//
//	link <href>     item link
//	next <href>     pager link
//	book <title>    detail page
type stubExtractor struct {
	panicOn string
}

func (e stubExtractor) Categories(body string) ([]models.Category, error) {
	var out []models.Category
	for _, line := range strings.Split(body, "\n") {
		if name, href, ok := strings.Cut(strings.TrimPrefix(line, "category "), " "); ok && strings.HasPrefix(line, "category ") {
			out = append(out, models.Category{Name: name, URL: href})
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no categories")
	}
	return out, nil
}

func (e stubExtractor) ItemLinks(body string) ([]string, error) {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if href, ok := strings.CutPrefix(line, "link "); ok {
			out = append(out, href)
		}
	}
	return out, nil
}

func (e stubExtractor) NextPageLink(body string) (string, bool) {
	for _, line := range strings.Split(body, "\n") {
		if href, ok := strings.CutPrefix(line, "next "); ok {
			return href, true
		}
	}
	return "", false
}

func (e stubExtractor) Book(body, pageURL string) (*models.Book, error) {
	if e.panicOn != "" && pageURL == e.panicOn {
		panic("unexpected markup")
	}
	title, ok := strings.CutPrefix(body, "book ")
	if !ok {
		return nil, errors.New("not a book page")
	}
	return &models.Book{Title: title, UPC: "upc-" + title, URL: pageURL}, nil
}

// recordingMetrics keeps the last observation of every kind.
type recordingMetrics struct {
	mu            sync.Mutex
	requests      int
	requestErrors int
	categories    int
	categoryBooks map[string]int
	booksFound    int
	parsed        int
	bookErrors    map[string]int
	duration      time.Duration
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		categoryBooks: make(map[string]int),
		bookErrors:    make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveRequest(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if err != nil {
		m.requestErrors++
	}
}

func (m *recordingMetrics) SetCategories(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = n
}

func (m *recordingMetrics) SetCategoryBooks(category string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categoryBooks[category] = n
}

func (m *recordingMetrics) SetBooksFound(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.booksFound = n
}

func (m *recordingMetrics) IncBooksParsed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parsed++
}

func (m *recordingMetrics) IncBooksErrors(cause string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookErrors[cause]++
}

func (m *recordingMetrics) SetScrapeDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func bookURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://example.test/catalogue/book-%d_%d/index.html", i, i)
	}
	return urls
}

func htmlResponder(body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, body)
		resp.Header.Set("Content-Type", "text/html")
		resp.Request = req
		return resp, nil
	}
}

func catalogRootHTML(categories ...models.Category) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="side_categories"><ul class="nav nav-list"><li><a href="catalogue/category/books_1/index.html">Books</a><ul>`)
	for _, c := range categories {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, c.URL, c.Name)
	}
	b.WriteString(`</ul></li></ul></div></body></html>`)
	return b.String()
}

func listingHTML(next string, links ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><section>`)
	for _, l := range links {
		fmt.Fprintf(&b, `<article class="product_pod"><h3><a href="%s" title="t">t</a></h3></article>`, l)
	}
	if next != "" {
		fmt.Fprintf(&b, `<ul class="pager"><li class="next"><a href="%s">next</a></li></ul>`, next)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

func detailHTML(title, upc string) string {
	return fmt.Sprintf(`<html><body>
<ul class="breadcrumb"><li><a href="../../index.html">Home</a></li><li><a href="../category/books_1/index.html">Books</a></li><li><a href="../category/books/poetry_23/index.html">Poetry</a></li><li class="active">%[1]s</li></ul>
<div class="product_main"><h1>%[1]s</h1></div>
<table class="table table-striped">
<tr><th>UPC</th><td>%[2]s</td></tr>
<tr><th>Product Type</th><td>Books</td></tr>
<tr><th>Price (excl. tax)</th><td>£10.00</td></tr>
<tr><th>Price (incl. tax)</th><td>£10.00</td></tr>
<tr><th>Tax</th><td>£0.00</td></tr>
<tr><th>Availability</th><td>In stock (3 available)</td></tr>
<tr><th>Number of reviews</th><td>0</td></tr>
</table></body></html>`, title, upc)
}
