// Package fetcher retrieves remote page content: a Colly-based HTTP fetcher
// for raw HTML and a Rod-based headless-browser driver for live DOM access.
package fetcher

import (
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// HTTPFetcher uses Colly for fast HTTP-only page fetching with
// browser-looking headers. Storefronts serve bot-detected clients a
// different page, so the default header set mimics a desktop Chrome.
type HTTPFetcher struct {
	collector *colly.Collector
	headers   []string
	log       *zap.Logger
}

// HTTPFetcherConfig holds configuration for the HTTP fetcher.
type HTTPFetcherConfig struct {
	UserAgent       string
	Timeout         time.Duration
	MaxResponseSize int
	Proxy           string
	CustomHeaders   []string
}

// defaultHeaders are sent with every request in addition to the user agent.
var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7",
	"Cache-Control":   "no-cache",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "none",
}

// NewHTTPFetcher creates a new Colly-based HTTP fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig, log *zap.Logger) *HTTPFetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true

	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}
	if cfg.Proxy != "" {
		_ = c.SetProxy(cfg.Proxy)
	}
	if cfg.MaxResponseSize > 0 {
		c.MaxBodySize = cfg.MaxResponseSize
	}

	return &HTTPFetcher{collector: c, headers: cfg.CustomHeaders, log: log}
}

func (f *HTTPFetcher) Name() string { return "http" }

// Fetch retrieves the page at the given URL.
func (f *HTTPFetcher) Fetch(targetURL string) (*plugin.PageData, error) {
	start := time.Now()

	page := &plugin.PageData{
		URL:       targetURL,
		FinalURL:  targetURL,
		FetchedAt: start,
	}

	// Clone the collector for this individual fetch so we get clean
	// per-request state while keeping the shared configuration. Clone does
	// not carry callbacks over, so they are registered here every time.
	c := f.collector.Clone()

	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		for key, value := range defaultHeaders {
			if r.Headers.Get(key) == "" {
				r.Headers.Set(key, value)
			}
		}
		for _, h := range f.headers {
			parts := strings.SplitN(h, ":", 2)
			if len(parts) == 2 {
				r.Headers.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.RawHTML = string(r.Body)
		page.ResponseSize = len(r.Body)
		page.FinalURL = r.Request.URL.String()
		page.ContentType = r.Headers.Get("Content-Type")

		page.Headers = make(http.Header)
		for key, values := range *r.Headers {
			for _, v := range values {
				page.Headers.Add(key, v)
			}
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			page.StatusCode = r.StatusCode
			page.FinalURL = r.Request.URL.String()
		}
		page.Error = err.Error()
	})

	err := c.Visit(targetURL)
	if err != nil && !strings.Contains(err.Error(), "already visited") {
		page.Error = err.Error()
		page.FetchDuration = time.Since(start)
		return page, err
	}

	c.Wait()
	page.FetchDuration = time.Since(start)

	if fetchErr != nil {
		f.log.Debug("fetch failed",
			zap.String("url", targetURL),
			zap.Int("status", page.StatusCode),
			zap.Error(fetchErr))
		return page, fetchErr
	}

	f.log.Debug("fetched page",
		zap.String("url", targetURL),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", page.ResponseSize),
		zap.Duration("took", page.FetchDuration))
	return page, nil
}

func (f *HTTPFetcher) Close() error { return nil }
