package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

func TestAnalyze_PageTypes(t *testing.T) {
	a := NewStructureAnalyzer()

	tests := []struct {
		name     string
		html     string
		pageType PageType
	}{
		{
			name: "notification form page",
			html: `<html><body><div class="product-detail">Widget</div>
<form class="restock-form"><input type="email"></form></body></html>`,
			pageType: PageOutOfStockNotification,
		},
		{
			name: "email form with notify wording",
			html: `<html><body><form action="/subscribe"><input type="email">
<button>Notify me when back</button></form></body></html>`,
			pageType: PageOutOfStockNotification,
		},
		{
			name: "active product page",
			html: `<html><body><div class="product-info">Widget</div>
<div class="price">$25.00</div><button id="add-to-cart">Add to Cart</button></body></html>`,
			pageType: PageActiveProduct,
		},
		{
			name:     "product page without buy section",
			html:     `<html><body><div class="product-info">Widget</div><div class="price">$25.00</div></body></html>`,
			pageType: PageProductNoBuy,
		},
		{
			name:     "unrecognized page",
			html:     `<html><body><div class="article">Blog post</div></body></html>`,
			pageType: PageUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := a.Analyze(tt.html)
			assert.Equal(t, tt.pageType, ps.PageType)
		})
	}
}

func TestAnalyze_PriceDetection(t *testing.T) {
	a := NewStructureAnalyzer()

	ps := a.Analyze(`<html><body><div class="product">Widget costs €1.299,00 today</div></body></html>`)
	assert.True(t, ps.HasPriceInfo)

	ps = a.Analyze(`<html><body><div class="product">Widget</div></body></html>`)
	assert.False(t, ps.HasPriceInfo)
}

func TestSignal_ConfidenceByPageType(t *testing.T) {
	a := NewStructureAnalyzer()

	tests := []struct {
		pageType PageType
		status   plugin.Status
		conf     float64
	}{
		{PageOutOfStockNotification, plugin.StatusUnavailable, 0.65},
		{PageActiveProduct, plugin.StatusAvailable, 0.6},
		{PageProductNoBuy, plugin.StatusUnavailable, 0.55},
		{PageUnknown, plugin.StatusUnknown, 0.0},
	}
	for _, tt := range tests {
		t.Run(string(tt.pageType), func(t *testing.T) {
			sig := a.Signal(PageStructure{PageType: tt.pageType}, false)
			assert.Equal(t, MethodStructure, sig.Method)
			assert.Equal(t, tt.status, sig.Status)
			assert.Equal(t, string(tt.pageType), sig.Reason)
			assert.InDelta(t, tt.conf, sig.Confidence, 0.001)
		})
	}
}

func TestSignal_FingerprintChangeNudge(t *testing.T) {
	a := NewStructureAnalyzer()

	sig := a.Signal(PageStructure{PageType: PageOutOfStockNotification}, true)
	assert.InDelta(t, 0.7, sig.Confidence, 0.001)

	// The nudge never lifts an Unknown.
	sig = a.Signal(PageStructure{PageType: PageUnknown}, true)
	assert.Zero(t, sig.Confidence)
	assert.Equal(t, plugin.StatusUnknown, sig.Status)
}
