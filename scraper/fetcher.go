package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-books/config"
	"github.com/gocolly/colly/v2"
)

// PageFetcher retrieves the body of one page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const (
	bodyKey   = "body"
	statusKey = "status"
)

var _ PageFetcher = (*CollyFetcher)(nil)

// CollyFetcher issues synchronous GETs through a shared colly collector. Each
// call carries its own colly.Context, so concurrent callers never see each
// other's responses.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   Metrics
}

// NewCollyFetcher builds a fetcher for the host of cfg.BaseURL.
func NewCollyFetcher(cfg *config.Config, metrics Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Concurrency + cfg.CategoryParallelism,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	// The limit rule caps total transport parallelism; the per-item bound K
	// is enforced by the Scheduler.
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency + cfg.CategoryParallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(statusKey, r.StatusCode)
		r.Ctx.Put(bodyKey, r.Body)
	})

	return &CollyFetcher{collector: collector, metrics: metrics}, nil
}

// Fetch performs one GET. Non-2xx responses, transport errors and timeouts
// are returned as *FetchError. Cancelling ctx returns immediately; the
// abandoned request finishes within the collector's request timeout.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		classified := classifyError(err, 0)
		f.metrics.ObserveRequest(0, classified)
		return "", &FetchError{URL: pageURL, Err: classified}
	}

	type fetched struct {
		body string
		err  error
	}
	done := make(chan fetched, 1)

	start := time.Now()
	go func() {
		body, err := f.do(pageURL)
		done <- fetched{body: body, err: err}
	}()

	var res fetched
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = classifyError(ctx.Err(), 0)
	}
	f.metrics.ObserveRequest(time.Since(start), res.err)

	if res.err != nil {
		return "", &FetchError{URL: pageURL, Err: res.err}
	}
	return res.body, nil
}

func (f *CollyFetcher) do(pageURL string) (string, error) {
	cctx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, pageURL, nil, cctx, nil); err != nil {
		return "", classifyError(err, 0)
	}

	status, _ := cctx.GetAny(statusKey).(int)
	if status == 0 {
		return "", fmt.Errorf("no response received")
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", classifyError(nil, status)
	}
	body, _ := cctx.GetAny(bodyKey).([]byte)
	return string(body), nil
}
