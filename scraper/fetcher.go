package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-products/config"
)

// PageURL returns baseURL with its page query parameter set to page.
func PageURL(baseURL string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page must be >= 1, got %d", page)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetcher retrieves listing pages. Every call runs on a clone of one base
// collector, so all fetches share a single HTTP client and connection pool
// and Fetch is safe for concurrent use.
type Fetcher struct {
	baseURL          string
	acceptErrorPages bool
	collector        *colly.Collector
	metrics          *Metrics
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	options := []colly.CollectorOption{
		colly.AllowedDomains(parsed.Hostname()),
		colly.AllowURLRevisit(),
	}
	if cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(cfg.UserAgent))
	}
	// cacheDir can be empty to disable caching.
	if cfg.CacheDir != "" {
		options = append(options, colly.CacheDir(cfg.CacheDir))
	}

	collector := colly.NewCollector(options...)
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = cfg.AcceptErrorPages

	dialTimeout := 30 * time.Second
	if cfg.Timeout > 0 {
		collector.SetRequestTimeout(cfg.Timeout)
		dialTimeout = cfg.Timeout
	}
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	// A limit rule always caps parallelism (at 1 when unset), so only install
	// one when something asks for it.
	if cfg.Parallelism > 0 || cfg.Delay > 0 || cfg.RandomDelay > 0 {
		parallelism := cfg.Parallelism
		if parallelism == 0 {
			parallelism = cfg.PageCount
		}
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: parallelism,
			Delay:       cfg.Delay,
			RandomDelay: cfg.RandomDelay,
		}); err != nil {
			return nil, fmt.Errorf("configure rate limits: %w", err)
		}
	}

	return &Fetcher{
		baseURL:          cfg.BaseURL,
		acceptErrorPages: cfg.AcceptErrorPages,
		collector:        collector,
		metrics:          metrics,
	}, nil
}

// Fetch issues one GET for the given page and returns the response body.
// Failures are reported as *NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, page int) (string, error) {
	pageURL, err := PageURL(f.baseURL, page)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &NetworkError{URL: pageURL, Page: page, Err: err}
	}

	c := f.collector.Clone()
	c.ParseHTTPErrorResponse = f.acceptErrorPages

	var (
		body       []byte
		statusCode int
		fetchErr   error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		f.metrics.IncRequest("started")
		slog.Info("fetching page",
			slog.String("url", r.URL.String()),
			slog.Int("page", page),
		)
	})

	c.OnResponse(func(r *colly.Response) {
		f.observe(r.Request)
		statusCode = r.StatusCode
		body = r.Body
		if r.StatusCode >= http.StatusBadRequest {
			slog.Warn("non-2xx response treated as page content",
				slog.Int("status", r.StatusCode),
				slog.String("url", r.Request.URL.String()),
			)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil {
				f.observe(r.Request)
			}
			// colly reports every status from 203 up as an error.
			if isSuccess(r.StatusCode) {
				body = r.Body
				return
			}
		}
		fetchErr = err
	})

	visitErr := c.Visit(pageURL)
	c.Wait()
	if fetchErr == nil && !isSuccess(statusCode) {
		fetchErr = visitErr
	}

	if fetchErr != nil {
		classified := classifyError(fetchErr, statusCode)
		if classified == nil {
			classified = fetchErr
		}
		category := ErrorType(classified)
		f.metrics.IncRequest("failed")
		f.metrics.IncError(category)
		slog.Error("request error",
			slog.String("url", pageURL),
			slog.String("category", category),
			slog.Any("error", fetchErr),
		)
		return "", &NetworkError{URL: pageURL, Page: page, Err: classified}
	}

	f.metrics.IncRequest("completed")
	return string(body), nil
}

func isSuccess(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

func (f *Fetcher) observe(r *colly.Request) {
	if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
		f.metrics.ObserveDuration(time.Since(start))
	}
}
