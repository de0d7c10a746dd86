// Package prober discovers likely backend data endpoints from page markup
// and probes them for machine-readable stock state.
package prober

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/internal/analyzer"
	"golang.org/x/net/publicsuffix"
)

// MethodProber is the method name reported by the API prober.
const MethodProber = "api_probe"

// Path-literal patterns that smell like data endpoints.
var reEndpointLiterals = []*regexp.Regexp{
	regexp.MustCompile(`["']((?:https?://|/)[^"'\s]*/api/[^"'\s]*)["']`),
	regexp.MustCompile(`["']((?:https?://|/)[^"'\s]*/v\d+/[^"'\s]*)["']`),
	regexp.MustCompile(`["']((?:https?://|/)[^"'\s]*/ajax/[^"'\s]*)["']`),
	regexp.MustCompile(`["']((?:https?://|/)[^"'\s]*/rest/[^"'\s]*)["']`),
	regexp.MustCompile(`["']((?:https?://|/)[^"'\s]*\.json(?:\?[^"'\s]*)?)["']`),
	regexp.MustCompile(`["']((?:https?://|/)[^"'\s]*\.xml(?:\?[^"'\s]*)?)["']`),
	regexp.MustCompile(`["']((?:https?://|/)[^"'\s]*\.php\?[^"'\s]*action=[^"'\s]*)["']`),
}

// JS call sites whose first argument is a request target.
var reJSCalls = []*regexp.Regexp{
	regexp.MustCompile(`fetch\(\s*["']([^"']+)["']`),
	regexp.MustCompile(`\.open\(\s*["'](?:GET|POST)["']\s*,\s*["']([^"']+)["']`),
	regexp.MustCompile(`\$\.(?:get|post|getJSON)\(\s*["']([^"']+)["']`),
	regexp.MustCompile(`\.ajax\(\s*\{[^}]*?url\s*:\s*["']([^"']+)["']`),
}

// data-* attributes that commonly carry endpoint URLs.
var endpointAttrs = []string{"data-url", "data-api", "data-endpoint", "data-action-url", "data-fetch-url"}

// Common inventory-API path guesses tried against the page origin.
var inventoryPathGuesses = []string{
	"/api/stock",
	"/api/inventory",
	"/api/v1/stock",
	"/api/product/stock",
	"/ajax/stock_status",
	"/stock.json",
	"/inventory.json",
}

// Static-asset and documentation paths are never data endpoints.
var (
	staticExts = []string{
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".avif",
		".css", ".woff", ".woff2", ".ttf", ".eot", ".otf",
		".mp4", ".webm", ".mp3", ".wav", ".ogg", ".map", ".js",
	}
	docPathMarkers = []string{"/docs/", "/documentation/", "/swagger", "/openapi", "/help/", "/wiki/"}
)

// Prober discovers and probes backend endpoints. Discovered endpoint lists
// are cached per registrable domain with no TTL; invalidation is a restart.
type Prober struct {
	client       *http.Client
	userAgent    string
	maxEndpoints int
	topK         int
	keywords     *analyzer.KeywordClassifier
	log          *zap.Logger

	mu    sync.Mutex
	cache map[string][]string
}

// Config holds prober configuration.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxEndpoints int
	TopK         int
}

// New creates a prober. The keyword classifier is shared with the page
// analyzer so plain-text responses are scored with the same keyword sets.
func New(cfg Config, keywords *analyzer.KeywordClassifier, log *zap.Logger) *Prober {
	maxEndpoints := cfg.MaxEndpoints
	if maxEndpoints <= 0 {
		maxEndpoints = 10
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 1
	}
	return &Prober{
		client:       &http.Client{Timeout: cfg.Timeout},
		userAgent:    cfg.UserAgent,
		maxEndpoints: maxEndpoints,
		topK:         topK,
		keywords:     keywords,
		log:          log,
		cache:        make(map[string][]string),
	}
}

// TopK returns how many discovered candidates a single check probes.
func (p *Prober) TopK() int { return p.topK }

// Discover scans fetched markup and inline scripts for endpoint candidates,
// normalized against the page origin, deduplicated and capped. Results are
// cached per registrable domain.
func (p *Prober) Discover(pageURL, html string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	domain := cacheDomain(base)

	p.mu.Lock()
	if cached, ok := p.cache[domain]; ok {
		p.mu.Unlock()
		return cached
	}
	p.mu.Unlock()

	seen := make(map[string]bool)
	var endpoints []string
	add := func(raw string) {
		if len(endpoints) >= p.maxEndpoints {
			return
		}
		normalized := normalizeEndpoint(base, raw)
		if normalized == "" || seen[normalized] {
			return
		}
		seen[normalized] = true
		endpoints = append(endpoints, normalized)
	}

	for _, re := range reEndpointLiterals {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			add(m[1])
		}
	}
	for _, re := range reJSCalls {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			add(m[1])
		}
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		for _, attr := range endpointAttrs {
			doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
				add(s.AttrOr(attr, ""))
			})
		}
	}

	for _, guess := range inventoryPathGuesses {
		add(base.Scheme + "://" + base.Host + guess)
	}

	p.mu.Lock()
	p.cache[domain] = endpoints
	p.mu.Unlock()

	p.log.Debug("discovered endpoints",
		zap.String("domain", domain),
		zap.Int("count", len(endpoints)))
	return endpoints
}

// normalizeEndpoint resolves raw against the page origin and filters out
// cross-origin, static, and documentation targets.
func normalizeEndpoint(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "javascript:") ||
		strings.HasPrefix(raw, "data:") || strings.Contains(raw, "${") {
		return ""
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	lower := strings.ToLower(resolved.Path)
	for _, ext := range staticExts {
		if strings.HasSuffix(lower, ext) {
			return ""
		}
	}
	for _, marker := range docPathMarkers {
		if strings.Contains(lower, marker) {
			return ""
		}
	}
	resolved.Fragment = ""
	return resolved.String()
}

func cacheDomain(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
