package main_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	main "github.com/aluiziolira/go-scrape-books/cmd/scraper"
	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/aluiziolira/go-scrape-books/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "http://example.test/"

type pageFetcher map[string]string

func (f pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	body, ok := f[url]
	if !ok {
		return "", &scraper.FetchError{URL: url, Err: scraper.ErrNotFound{Err: scraper.ErrHTTPStatus{StatusCode: 404}}}
	}
	return body, nil
}

func detail(title, upc string) string {
	return fmt.Sprintf(`<html><body>
<ul class="breadcrumb"><li><a href="../../index.html">Home</a></li><li><a href="../category/books/travel_2/index.html">Travel</a></li><li class="active">%[1]s</li></ul>
<div class="product_main"><h1>%[1]s</h1></div>
<table class="table table-striped">
<tr><th>UPC</th><td>%[2]s</td></tr>
<tr><th>Product Type</th><td>Books</td></tr>
<tr><th>Price (excl. tax)</th><td>£45.17</td></tr>
<tr><th>Price (incl. tax)</th><td>£45.17</td></tr>
<tr><th>Tax</th><td>£0.00</td></tr>
<tr><th>Availability</th><td>In stock (19 available)</td></tr>
<tr><th>Number of reviews</th><td>0</td></tr>
</table></body></html>`, title, upc)
}

// catalog has one category with three books; the third detail page is missing.
func catalog() pageFetcher {
	return pageFetcher{
		base: `<html><body><div class="side_categories"><ul class="nav nav-list"><li><a href="catalogue/category/books_1/index.html">Books</a><ul>
<li><a href="catalogue/category/books/travel_2/index.html">Travel</a></li>
</ul></li></ul></div></body></html>`,
		base + "catalogue/category/books/travel_2/index.html": `<html><body>
<article class="product_pod"><h3><a href="../../../its-only-the-himalayas_981/index.html">t</a></h3></article>
<article class="product_pod"><h3><a href="../../../full-moon-over-noahs-ark_811/index.html">t</a></h3></article>
<article class="product_pod"><h3><a href="../../../see-america_732/index.html">t</a></h3></article>
</body></html>`,
		base + "catalogue/its-only-the-himalayas_981/index.html":   detail("It's Only the Himalayas", "a22124811bfa8350"),
		base + "catalogue/full-moon-over-noahs-ark_811/index.html": detail("Full Moon over Noah's Ark", "ce60436f52c5ee68"),
	}
}

func newTestMain(fetcher scraper.PageFetcher) *main.Main {
	m := main.NewMain()
	m.Now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	m.ScraperOptions = []scraper.Option{scraper.WithFetcher(fetcher)}
	return m
}

func TestMain_Run_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := newTestMain(catalog()).Run(context.Background(), []string{"--help"}, &stdout, &stderr)

	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "scraper")
	assert.Contains(t, stdout.String(), "--concurrency")
	assert.Contains(t, stdout.String(), "SCRAPER_FORMAT")
}

func TestMain_Run_InvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := newTestMain(catalog()).Run(context.Background(), []string{"--base-url", base, "--format", "xml"}, &stdout, &stderr)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "output format")
}

func TestMain_Run_RootFailureIsFatal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "books.csv")

	err := newTestMain(pageFetcher{}).Run(context.Background(),
		[]string{"--base-url", base, "--format", "csv", "--output", out}, &stdout, &stderr)

	require.Error(t, err)
	var status scraper.ErrHTTPStatus
	assert.True(t, errors.As(err, &status))
	assert.NoFileExists(t, out)
}

func TestMain_Run_CSV(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "books.csv")

	err := newTestMain(catalog()).Run(context.Background(),
		[]string{"--base-url", base, "--format", "csv", "--output", out}, &stdout, &stderr)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "title", records[0][0])

	titles := []string{records[1][0], records[2][0]}
	assert.ElementsMatch(t, []string{"It's Only the Himalayas", "Full Moon over Noah's Ark"}, titles)

	summary := stdout.String()
	assert.Contains(t, summary, "Scrape complete")
	assert.Contains(t, summary, "Books found:   3")
	assert.Contains(t, summary, "Succeeded:     2")
	assert.Contains(t, summary, "Failed:        1")
	assert.Contains(t, summary, "not_found")
}

func TestMain_Run_DualDefaultPaths(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer

	err := newTestMain(catalog()).Run(context.Background(),
		[]string{"--base-url", base, "--format", "dual"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join("data", "books_20250102_030405.csv"))
	data, err := os.ReadFile(filepath.Join("data", "books_20250102_030405.json"))
	require.NoError(t, err)

	var books []models.Book
	require.NoError(t, json.Unmarshal(data, &books))
	assert.Len(t, books, 2)
	for _, b := range books {
		assert.Equal(t, "Travel", b.Category)
		assert.Equal(t, "£45.17", b.PriceInclTax)
	}
}

func TestMain_Run_SQLite(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "snapshots", "books.db")

	err := newTestMain(catalog()).Run(context.Background(),
		[]string{"--base-url", base, "--format", "sqlite", "--output", out}, &stdout, &stderr)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", out)
	require.NoError(t, err)
	defer db.Close()

	var rows, runs int
	require.NoError(t, db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT run_id) FROM books").Scan(&rows, &runs))
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, runs)

	var runID string
	require.NoError(t, db.QueryRow("SELECT run_id FROM books LIMIT 1").Scan(&runID))
	assert.Contains(t, stdout.String(), runID)
}

func TestMain_Run_ConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "books.json")
	logFile := filepath.Join(dir, "logs", "run.log")
	cfgPath := filepath.Join(dir, "scraper.yaml")
	yaml := fmt.Sprintf("baseUrl: %s\noutputFormat: csv\noutputFile: %s\nconcurrency: 3\n", base, filepath.Join(dir, "ignored.csv"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	var stdout, stderr bytes.Buffer
	err := newTestMain(catalog()).Run(context.Background(),
		[]string{"--config", cfgPath, "-f", "json", "-o", out, "--log-file", logFile}, &stdout, &stderr)
	require.NoError(t, err)

	assert.FileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "ignored.csv"))

	logs, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logs), `"msg":"starting scrape"`)
	assert.Contains(t, string(logs), `"concurrency":3`)
	assert.True(t, strings.Contains(string(logs), `"run_id":`))
}
