package analyzer

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// MethodStructure is the method name reported by the structure analyzer.
const MethodStructure = "page_structure"

// PageType classifies the overall shape of a page.
type PageType string

const (
	PageOutOfStockNotification PageType = "out_of_stock_notification"
	PageActiveProduct          PageType = "active_product"
	PageProductNoBuy           PageType = "product_no_buy"
	PageUnknown                PageType = "unknown"
)

// PageStructure is the structural classification of one page.
type PageStructure struct {
	IsProductPage       bool
	HasPriceInfo        bool
	HasBuySection       bool
	HasNotificationForm bool
	PageType            PageType
}

// CSS class / id substrings and text markers used for classification.
var (
	productMarkers = []string{"product", "item-detail", "sku", "plan", "pricing", "goods"}
	buyMarkers     = []string{"cart", "checkout", "buy", "purchase", "order-now", "payment"}
	notifyMarkers  = []string{"waitlist", "notify", "restock", "back-in-stock", "arrival-notice"}
	priceMarkers   = []string{"price", "amount", "cost"}
)

// StructureAnalyzer classifies a page as product / checkout / notification-form
// shaped from structural markers. Its signal is corroborating only; fusion
// gives it the lowest weight of all methods.
type StructureAnalyzer struct{}

// NewStructureAnalyzer creates a structure analyzer.
func NewStructureAnalyzer() *StructureAnalyzer {
	return &StructureAnalyzer{}
}

// Analyze inspects the HTML for structural markers.
func (a *StructureAnalyzer) Analyze(html string) PageStructure {
	var ps PageStructure

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		ps.PageType = PageUnknown
		return ps
	}

	ps.IsProductPage = hasMarkedElement(doc, productMarkers)
	ps.HasBuySection = hasMarkedElement(doc, buyMarkers)
	ps.HasNotificationForm = hasNotificationForm(doc)
	ps.HasPriceInfo = hasMarkedElement(doc, priceMarkers) || rePrice.MatchString(html)

	switch {
	case ps.HasNotificationForm:
		ps.PageType = PageOutOfStockNotification
	case ps.IsProductPage && ps.HasBuySection:
		ps.PageType = PageActiveProduct
	case ps.IsProductPage:
		ps.PageType = PageProductNoBuy
	default:
		ps.PageType = PageUnknown
	}
	return ps
}

// Signal converts a structural classification plus the fingerprint change
// flag into a low-confidence corroborating signal.
func (a *StructureAnalyzer) Signal(ps PageStructure, fingerprintChanged bool) plugin.Signal {
	sig := plugin.Signal{
		Method: MethodStructure,
		Reason: string(ps.PageType),
		Evidence: fmt.Sprintf("product=%t price=%t buy=%t notify_form=%t fingerprint_changed=%t",
			ps.IsProductPage, ps.HasPriceInfo, ps.HasBuySection, ps.HasNotificationForm, fingerprintChanged),
	}

	switch ps.PageType {
	case PageOutOfStockNotification:
		sig.Status = plugin.StatusUnavailable
		sig.Confidence = 0.65
	case PageActiveProduct:
		sig.Status = plugin.StatusAvailable
		sig.Confidence = 0.6
	case PageProductNoBuy:
		sig.Status = plugin.StatusUnavailable
		sig.Confidence = 0.55
	default:
		sig.Status = plugin.StatusUnknown
		sig.Confidence = 0.0
	}

	// A fingerprint change means the page moved since last check; nudge the
	// structural read slightly since stale classifications age badly.
	if fingerprintChanged && sig.Status != plugin.StatusUnknown {
		sig.Confidence = min(sig.Confidence+0.05, 0.7)
	}
	return sig
}

// hasMarkedElement reports whether any element carries one of the marker
// substrings in its class or id.
func hasMarkedElement(doc *goquery.Document, markers []string) bool {
	found := false
	doc.Find("[class],[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		attr := strings.ToLower(s.AttrOr("class", "") + " " + s.AttrOr("id", ""))
		for _, m := range markers {
			if strings.Contains(attr, m) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// hasNotificationForm looks for a waitlist/notify form: either marker classes
// on a form, or a form pairing an email input with notify wording.
func hasNotificationForm(doc *goquery.Document) bool {
	found := false
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		attr := strings.ToLower(s.AttrOr("class", "") + " " + s.AttrOr("id", "") + " " + s.AttrOr("action", ""))
		for _, m := range notifyMarkers {
			if strings.Contains(attr, m) {
				found = true
				return false
			}
		}
		if s.Find("input[type=email]").Length() > 0 {
			text := strings.ToLower(s.Text())
			if strings.Contains(text, "notify") || strings.Contains(text, "waitlist") ||
				strings.Contains(text, "back in stock") || strings.Contains(text, "到货通知") {
				found = true
				return false
			}
		}
		return true
	})
	return found
}
