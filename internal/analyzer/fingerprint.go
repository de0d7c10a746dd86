// Package analyzer holds the content-level detection methods: keyword
// classification, page-structure classification, and content fingerprinting.
// Everything here works on raw HTML and is independent of the browser.
package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
)

// rePrice matches currency-symbol-prefixed numbers ($12.99, €1.299,00, ¥ 1980, US$49).
var rePrice = regexp.MustCompile(`(?:US\$|C\$|A\$|HK\$|NT\$|[$€£¥₩₹])\s?\d[\d.,]*`)

// fingerprintKeywords are the stock phrases whose neighborhoods get hashed.
// Bilingual: matching the keyword classifier's English and Chinese sets.
var fingerprintKeywords = []string{
	"in stock", "out of stock", "sold out", "available", "unavailable",
	"add to cart", "notify me", "back in stock", "pre-order",
	"现货", "缺货", "售罄", "补货", "库存", "断货", "到货",
}

const (
	buttonTextLimit   = 50
	keywordWindowSize = 60
)

// FingerprintTracker remembers a content hash per URL and reports whether the
// salient parts of a page changed since the previous check. A change is a
// weak hint consumed by fusion, never a verdict on its own.
type FingerprintTracker struct {
	mu     sync.Mutex
	hashes map[string]uint64
}

// NewFingerprintTracker creates an empty tracker.
func NewFingerprintTracker() *FingerprintTracker {
	return &FingerprintTracker{hashes: make(map[string]uint64)}
}

// Update hashes the salient fragments of html and compares against the last
// recorded hash for url. The first observation of a URL records a baseline
// and never reports a change.
func (t *FingerprintTracker) Update(url, html string) (changed bool, message string) {
	h := fingerprint(html)

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.hashes[url]
	t.hashes[url] = h

	if !seen {
		return false, "baseline recorded"
	}
	if prev == h {
		return false, "unchanged"
	}
	return true, fmt.Sprintf("content changed (%x -> %x)", prev, h)
}

// fingerprint extracts prices, button labels, and stock-keyword neighborhoods
// and hashes their concatenation. Full-page hashing would fire on every ad
// rotation; restricting to salient fragments keeps the signal usable.
func fingerprint(html string) uint64 {
	var parts []string

	parts = append(parts, rePrice.FindAllString(html, -1)...)

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("button, input[type=submit], a.btn, a.button").Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text == "" {
				text = strings.TrimSpace(s.AttrOr("value", ""))
			}
			if text != "" {
				parts = append(parts, truncate(text, buttonTextLimit))
			}
		})
	}

	lower := strings.ToLower(html)
	for _, kw := range fingerprintKeywords {
		idx := 0
		for {
			pos := strings.Index(lower[idx:], kw)
			if pos < 0 {
				break
			}
			pos += idx
			start := pos - keywordWindowSize
			if start < 0 {
				start = 0
			}
			end := pos + len(kw) + keywordWindowSize
			if end > len(lower) {
				end = len(lower)
			}
			parts = append(parts, lower[start:end])
			idx = pos + len(kw)
		}
	}

	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.WriteString("\x00")
	}
	return d.Sum64()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
