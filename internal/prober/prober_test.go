package prober

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/internal/analyzer"
	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

func newTestProber(t *testing.T) *Prober {
	t.Helper()
	keywords := analyzer.NewKeywordClassifier(config.DefaultWeights())
	return New(Config{
		Timeout:      5 * time.Second,
		MaxEndpoints: 10,
		TopK:         1,
	}, keywords, zap.NewNop())
}

func TestDiscover_FindsEndpointCandidates(t *testing.T) {
	p := newTestProber(t)

	html := `<html><head>
<script>
fetch('/api/v1/product/42/stock');
$.getJSON("/ajax/availability");
</script>
</head><body>
<div data-url="/api/cart/summary"></div>
<a href="/docs/api-guide">API guide</a>
<img src="/assets/hero.png">
</body></html>`

	endpoints := p.Discover("https://shop.example.com/p/42", html)

	assert.Contains(t, endpoints, "https://shop.example.com/api/v1/product/42/stock")
	assert.Contains(t, endpoints, "https://shop.example.com/ajax/availability")
	assert.Contains(t, endpoints, "https://shop.example.com/api/cart/summary")
	// Path guesses against the origin are always appended.
	assert.Contains(t, endpoints, "https://shop.example.com/api/stock")
	// Static assets and documentation never qualify.
	assert.NotContains(t, endpoints, "https://shop.example.com/assets/hero.png")
	assert.NotContains(t, endpoints, "https://shop.example.com/docs/api-guide")
}

func TestDiscover_CapsAndDeduplicates(t *testing.T) {
	keywords := analyzer.NewKeywordClassifier(config.DefaultWeights())
	p := New(Config{MaxEndpoints: 3, TopK: 1}, keywords, zap.NewNop())

	html := `<script>
fetch('/api/a'); fetch('/api/a'); fetch('/api/b');
fetch('/api/c'); fetch('/api/d'); fetch('/api/e');
</script>`
	endpoints := p.Discover("https://shop.example.com/p/1", html)

	assert.Len(t, endpoints, 3)
	assert.Equal(t, "https://shop.example.com/api/a", endpoints[0])
}

func TestDiscover_CachedPerDomain(t *testing.T) {
	p := newTestProber(t)

	first := p.Discover("https://shop.example.com/p/1", `<script>fetch('/api/one');</script>`)
	// A different page on the same registrable domain hits the cache even
	// though its markup names different endpoints.
	second := p.Discover("https://www.shop.example.com/p/2", `<script>fetch('/api/two');</script>`)

	assert.Equal(t, first, second)
}

func TestDiscover_SkipsTemplatesAndPseudoURLs(t *testing.T) {
	p := newTestProber(t)

	html := `<script>
fetch('/api/item/${id}/stock');
</script>
<div data-url="javascript:void(0)"></div>
<div data-api="#"></div>`
	endpoints := p.Discover("https://shop.example.com/p/1", html)

	for _, ep := range endpoints {
		assert.NotContains(t, ep, "${")
		assert.NotContains(t, ep, "javascript:")
	}
}

func TestProbe_JSONQuantity(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status plugin.Status
		conf   float64
		reason string
	}{
		{"positive stock", `{"product_id": 42, "stock": 5}`, plugin.StatusAvailable, 0.9, "positive_quantity"},
		{"zero stock", `{"stock": 0, "status": "out_of_stock"}`, plugin.StatusUnavailable, 0.95, "zero_quantity"},
		{"explicit negative", `{"sold_out": true, "inventory": 3}`, plugin.StatusUnavailable, 0.95, "explicit_negative_field"},
		{"boolean availability", `{"available": true}`, plugin.StatusAvailable, 0.85, "boolean_fields"},
		{"status string", `{"availability": "in stock"}`, plugin.StatusAvailable, 0.75, "status_field"},
		{"empty result set", `[]`, plugin.StatusUnavailable, 0.85, "empty_result_set"},
		{"nested stock field", `{"data": {"variants": [{"sku": "A", "quantity": 7}]}}`, plugin.StatusAvailable, 0.9, "positive_quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newTestProber(t)
			sig, err := p.Probe(context.Background(), srv.URL+"/api/stock")

			require.NoError(t, err)
			assert.Equal(t, MethodProber, sig.Method)
			assert.Equal(t, tt.status, sig.Status)
			assert.InDelta(t, tt.conf, sig.Confidence, 0.001)
			assert.Equal(t, tt.reason, sig.Reason)
		})
	}
}

func TestProbe_JSONWithoutStockFieldsStopsCascade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"page": "product", "title": "Widget in stock"}`))
	}))
	defer srv.Close()

	p := newTestProber(t)
	sig, err := p.Probe(context.Background(), srv.URL+"/api/page")

	// Valid JSON with no stock fields is Unknown; the keyword fallback must
	// not fire on serialized JSON text.
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusUnknown, sig.Status)
}

func TestProbe_ItemArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"sku":"A","stock":0},{"sku":"B","stock":2}]`))
	}))
	defer srv.Close()

	p := newTestProber(t)
	sig, err := p.Probe(context.Background(), srv.URL+"/api/variants")

	require.NoError(t, err)
	assert.Equal(t, plugin.StatusAvailable, sig.Status)
	assert.Contains(t, sig.Evidence, "1 of 2 available")
}

func TestProbe_XMLResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0"?><response><product><stock>3</stock></product></response>`))
	}))
	defer srv.Close()

	p := newTestProber(t)
	sig, err := p.Probe(context.Background(), srv.URL+"/stock.xml")

	require.NoError(t, err)
	assert.Equal(t, plugin.StatusAvailable, sig.Status)
	assert.InDelta(t, 0.9, sig.Confidence, 0.001)
}

func TestProbe_CSVResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("sku,stock\nA123,0\n"))
	}))
	defer srv.Close()

	p := newTestProber(t)
	sig, err := p.Probe(context.Background(), srv.URL+"/export.csv")

	require.NoError(t, err)
	assert.Equal(t, plugin.StatusUnavailable, sig.Status)
	assert.Equal(t, "zero_quantity", sig.Reason)
}

func TestProbe_PlainTextKeywords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Sorry, this item is sold out."))
	}))
	defer srv.Close()

	p := newTestProber(t)
	sig, err := p.Probe(context.Background(), srv.URL+"/status")

	require.NoError(t, err)
	assert.Equal(t, plugin.StatusUnavailable, sig.Status)
}

func TestProbe_FallsBackToPOST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte(`{"stock": 1}`))
	}))
	defer srv.Close()

	p := newTestProber(t)
	sig, err := p.Probe(context.Background(), srv.URL+"/api/stock")

	require.NoError(t, err)
	assert.Equal(t, plugin.StatusAvailable, sig.Status)
}

func TestProbe_BothVerbsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	p := newTestProber(t)
	sig, err := p.Probe(context.Background(), srv.URL+"/api/stock")

	require.ErrorIs(t, err, ErrProbe)
	assert.Equal(t, plugin.StatusUnknown, sig.Status)
}

func TestStatusLeaning(t *testing.T) {
	tests := []struct {
		value string
		avail bool
		ok    bool
	}{
		{"in stock", true, true},
		{"IN_STOCK", true, true},
		{"out of stock", false, true},
		{"sold_out", false, true},
		{"unavailable", false, true},
		{"现货", true, true},
		{"无货", false, true},
		{"shipped", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			avail, ok := statusLeaning(tt.value)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.avail, avail)
			}
		})
	}
}
