// Package inspector drives the headless browser to judge stock state from
// the live DOM: explicit out-of-stock text, labeled quantities, and the
// presence and state of purchase controls, with per-vendor overrides.
package inspector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// MethodInspector is the method name reported by the element inspector.
const MethodInspector = "element_inspection"

// textSelector covers the elements whose visible text is worth scanning.
const textSelector = "h1, h2, h3, h4, p, span, div, strong, b, em, li, td, dd, label, button, a, font"

// controlSelector covers interactive purchase-control candidates.
const controlSelector = "button, input[type=submit], input[type=button], a[role=button], a[class*=btn], a[class*=button]"

// explicitOutPhrases is the curated bilingual phrase list for the explicit
// out-of-stock text scan. Weights 0.7-1.0; a hit at or above the configured
// floor short-circuits the whole inspection.
var explicitOutPhrases = []struct {
	phrase string
	weight float64
}{
	{"sold out", 1.0},
	{"out of stock", 1.0},
	{"售罄", 1.0},
	{"currently unavailable", 0.95},
	{"无货", 0.95},
	{"no longer available", 0.9},
	{"缺货", 0.9},
	{"temporarily unavailable", 0.85},
	{"暂时缺货", 0.85},
	{"补货中", 0.8},
	{"到货通知", 0.75},
	{"coming soon", 0.7},
}

// Purchase-control keyword tiers. Negative weight marks a notify/waitlist
// control, which is evidence against availability.
var controlTiers = []struct {
	words  []string
	weight float64
}{
	{[]string{"notify me", "waitlist", "email me when", "notify when", "restock alert", "到货通知", "缺货登记"}, -1.0},
	{[]string{"buy now", "order now", "purchase", "立即购买", "马上抢购"}, 1.0},
	{[]string{"add to cart", "add to basket", "add to bag", "加入购物车"}, 0.9},
	{[]string{"configure", "select plan", "select options", "choose option", "选择规格"}, 0.7},
	{[]string{"continue", "create", "get started"}, 0.35},
}

var (
	negContextWords = []string{"login", "log in", "sign in", "register", "subscribe", "newsletter"}
	posContextWords = []string{"price", "plan", "checkout", "cart", "shipping", "价格", "配送"}

	navChromeMarkers    = []string{"nav", "menu", "header", "footer", "breadcrumb", "sidebar"}
	alertAncestorMarker = []string{"alert", "status", "warning", "notice", "title", "heading"}

	rePriceText = regexp.MustCompile(`(?:US\$|[$€£¥₩₹])\s?\d[\d.,]*`)

	reStockQty = []*regexp.Regexp{
		regexp.MustCompile(`(?i)stock\s*[::]\s*(\d+)`),
		regexp.MustCompile(`库存\s*[::]?\s*(\d+)`),
		regexp.MustCompile(`(?i)\bonly\s+(\d+)\s+left\b`),
		regexp.MustCompile(`(?i)\b(\d+)\s+(?:items?\s+|units?\s+)?in stock\b`),
		regexp.MustCompile(`剩余\s*(\d+)`),
	}
)

// Inspector evaluates the live DOM of a product page through the injected
// browser capability.
type Inspector struct {
	browser plugin.Browser
	vendors *VendorTable // nil disables vendor-specific dispatch
	w       config.Weights
	log     *zap.Logger
}

// New creates an inspector. vendors may be nil to disable vendor overrides.
func New(browser plugin.Browser, vendors *VendorTable, w config.Weights, log *zap.Logger) *Inspector {
	return &Inspector{browser: browser, vendors: vendors, w: w, log: log}
}

// Inspect navigates to the URL and runs the ordered detection algorithm,
// short-circuiting on the first definitive result. Failures are captured in
// the returned details map; the signal degrades to Unknown rather than
// erroring out.
func (in *Inspector) Inspect(ctx context.Context, pageURL string) (plugin.Signal, map[string]string) {
	details := make(map[string]string)

	if err := in.browser.Navigate(ctx, pageURL); err != nil {
		details["error"] = "navigate: " + err.Error()
		return plugin.Unknown(MethodInspector, "navigation failed"), details
	}

	// Vendor chain: a registered handler gets first say; if it declines or
	// fails we try the CMS-pattern detector, then drop straight into the
	// purchase-button flow. The explicit text and quantity scans only run
	// on fully generic pages.
	if in.vendors != nil {
		domain := registrableDomain(pageURL)
		details["domain"] = domain
		if handler, ok := in.vendors.Lookup(domain); ok {
			sig, err := handler(ctx, in.browser, in.w)
			if err != nil {
				details["vendor_error"] = err.Error()
				in.log.Debug("vendor handler failed", zap.String("domain", domain), zap.Error(err))
			} else if sig.Status != plugin.StatusUnknown {
				details["vendor"] = domain
				return sig, details
			} else {
				details["vendor_declined"] = sig.Evidence
			}

			if sig := detectCMS(in.browser, in.w); sig.Status != plugin.StatusUnknown {
				details["cms"] = sig.Evidence
				return sig, details
			}
			return in.buttonFlow(details)
		}
	}

	visible := in.findVisible(textSelector)

	// Step 2: explicit out-of-stock text, the highest-priority signal.
	if sig, ok := in.explicitTextScan(visible, details); ok {
		return sig, details
	}

	// Step 3: labeled stock quantities.
	if sig, ok := in.quantityScan(visible, details); ok {
		return sig, details
	}

	// Steps 4-6.
	return in.buttonFlow(details)
}

// ---------- step 2: explicit text ----------

type visibleEl struct {
	el   plugin.Element
	text string
}

func (in *Inspector) findVisible(selector string) []visibleEl {
	els, err := in.browser.Find(selector)
	if err != nil {
		return nil
	}
	out := make([]visibleEl, 0, len(els))
	for _, el := range els {
		if !el.Visible() {
			continue
		}
		text := strings.TrimSpace(el.Text())
		if text == "" {
			continue
		}
		out = append(out, visibleEl{el: el, text: text})
	}
	return out
}

func (in *Inspector) explicitTextScan(visible []visibleEl, details map[string]string) (plugin.Signal, bool) {
	var best float64
	var bestPhrase, bestText string

	for _, ve := range visible {
		lower := strings.ToLower(ve.text)
		for _, p := range explicitOutPhrases {
			if !strings.Contains(lower, p.phrase) {
				continue
			}
			if inNavChrome(ve.el) {
				continue
			}
			w := p.weight
			if hasAlertAncestor(ve.el) {
				w *= in.w.AncestorBoost
			}
			if w > 1.0 {
				w = 1.0
			}
			if w > best {
				best, bestPhrase, bestText = w, p.phrase, ve.text
			}
		}
	}

	if best > 0 {
		details["explicit_text"] = fmt.Sprintf("%q (weight %.2f) in %q", bestPhrase, best, truncate(bestText, 80))
	}
	if best >= in.w.ExplicitTextFloor {
		return plugin.Signal{
			Method:     MethodInspector,
			Status:     plugin.StatusUnavailable,
			Confidence: best,
			Reason:     "explicit_out_of_stock_text",
			Evidence:   details["explicit_text"],
		}, true
	}
	return plugin.Signal{}, false
}

// inNavChrome walks up to 5 ancestor levels looking for navigation chrome.
// A "sold out" in a mega-menu or footer link list says nothing about this page.
func inNavChrome(el plugin.Element) bool {
	cur := el
	for i := 0; i < 5 && cur != nil; i++ {
		tag := cur.Tag()
		if tag == "nav" || tag == "header" || tag == "footer" || tag == "aside" {
			return true
		}
		attr := strings.ToLower(cur.Attr("class") + " " + cur.Attr("id"))
		for _, m := range navChromeMarkers {
			if strings.Contains(attr, m) {
				return true
			}
		}
		cur = cur.Parent()
	}
	return false
}

// hasAlertAncestor checks up to 3 levels for heading/alert/status containers.
func hasAlertAncestor(el plugin.Element) bool {
	cur := el
	for i := 0; i < 3 && cur != nil; i++ {
		tag := cur.Tag()
		if tag == "h1" || tag == "h2" || tag == "h3" || tag == "h4" {
			return true
		}
		attr := strings.ToLower(cur.Attr("class") + " " + cur.Attr("id"))
		for _, m := range alertAncestorMarker {
			if strings.Contains(attr, m) {
				return true
			}
		}
		cur = cur.Parent()
	}
	return false
}

// ---------- step 3: labeled quantities ----------

func (in *Inspector) quantityScan(visible []visibleEl, details map[string]string) (plugin.Signal, bool) {
	for _, ve := range visible {
		for _, re := range reStockQty {
			m := re.FindStringSubmatch(ve.text)
			if m == nil {
				continue
			}
			qty, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			details["stock_quantity"] = m[0]
			if qty == 0 {
				return plugin.Signal{
					Method:     MethodInspector,
					Status:     plugin.StatusUnavailable,
					Confidence: in.w.QtyZeroConf,
					Reason:     "zero_stock_quantity",
					Evidence:   m[0],
				}, true
			}
			return plugin.Signal{
				Method:     MethodInspector,
				Status:     plugin.StatusAvailable,
				Confidence: in.w.QtyPositiveConf,
				Reason:     "positive_stock_quantity",
				Evidence:   m[0],
			}, true
		}
	}
	return plugin.Signal{}, false
}

// ---------- steps 4-6: purchase controls ----------

type control struct {
	weight  float64
	enabled bool
	label   string
}

func (in *Inspector) buttonFlow(details map[string]string) (plugin.Signal, map[string]string) {
	var controls []control
	notifyPresent := false

	for _, ve := range in.findVisible(controlSelector) {
		label := ve.text
		if label == "" {
			label = ve.el.Attr("value")
		}
		if label == "" {
			label = ve.el.Attr("aria-label")
		}
		w := classifyControl(label)
		if w == 0 {
			continue
		}
		if w < 0 {
			notifyPresent = true
			details["notify_control"] = truncate(label, 60)
			continue
		}
		w *= contextMultiplier(ve.el)
		controls = append(controls, control{weight: w, enabled: ve.el.Enabled(), label: label})
	}

	if notifyPresent {
		return plugin.Signal{
			Method:     MethodInspector,
			Status:     plugin.StatusUnavailable,
			Confidence: in.w.WaitlistConf,
			Reason:     "notify_control_present",
			Evidence:   "notify/waitlist control: " + details["notify_control"],
		}, details
	}

	hasPrice := in.hasPriceEvidence()
	hasProduct := in.hasProductInfo()
	hasForm := in.hasVisibleForm()
	details["corroboration"] = fmt.Sprintf("price=%t product=%t form=%t", hasPrice, hasProduct, hasForm)

	var buyControls, enabledBuy []control
	for _, c := range controls {
		if c.weight < in.w.MediumBuyFloor {
			continue
		}
		buyControls = append(buyControls, c)
		if c.enabled {
			enabledBuy = append(enabledBuy, c)
		}
	}

	if len(enabledBuy) > 0 {
		best := enabledBuy[0]
		for _, c := range enabledBuy[1:] {
			if c.weight > best.weight {
				best = c
			}
		}
		details["best_buy_control"] = fmt.Sprintf("%q (weight %.2f)", truncate(best.label, 60), best.weight)

		switch {
		case best.weight >= in.w.StrongBuyFloor && (hasPrice || hasProduct):
			return plugin.Signal{
				Method:     MethodInspector,
				Status:     plugin.StatusAvailable,
				Confidence: in.w.StrongBuyConf,
				Reason:     "enabled_buy_control",
				Evidence:   details["best_buy_control"],
			}, details
		case best.weight >= in.w.MediumBuyFloor && hasPrice && hasForm:
			return plugin.Signal{
				Method:     MethodInspector,
				Status:     plugin.StatusAvailable,
				Confidence: in.w.MediumBuyConf,
				Reason:     "probable_buy_control",
				Evidence:   details["best_buy_control"],
			}, details
		}
	} else if len(buyControls) > 0 {
		// Buy controls exist but every one of them is disabled.
		return plugin.Signal{
			Method:     MethodInspector,
			Status:     plugin.StatusUnavailable,
			Confidence: in.w.DisabledBuyConf,
			Reason:     "buy_controls_disabled",
			Evidence:   fmt.Sprintf("%d buy controls, all disabled", len(buyControls)),
		}, details
	}

	// Step 5: product page with no buy controls at all.
	if hasProduct && len(buyControls) == 0 {
		return plugin.Signal{
			Method:     MethodInspector,
			Status:     plugin.StatusUnavailable,
			Confidence: in.w.ProductNoBuyConf,
			Reason:     "product_page_without_buy_controls",
			Evidence:   "product markers present, no purchase controls",
		}, details
	}

	return plugin.Unknown(MethodInspector, "no decisive dom evidence"), details
}

// classifyControl maps a control label to its tier base weight, 0 if the
// label matches no tier.
func classifyControl(label string) float64 {
	lower := strings.ToLower(label)
	for _, tier := range controlTiers {
		for _, word := range tier.words {
			if strings.Contains(lower, word) {
				return tier.weight
			}
		}
	}
	return 0
}

// contextMultiplier derives a weight multiplier from the parent element's
// text: halved when account-chrome words dominate, raised 10% per positive
// commerce word.
func contextMultiplier(el plugin.Element) float64 {
	parent := el.Parent()
	if parent == nil {
		return 1.0
	}
	text := strings.ToLower(parent.Text())

	var neg, pos int
	for _, w := range negContextWords {
		if strings.Contains(text, w) {
			neg++
		}
	}
	for _, w := range posContextWords {
		if strings.Contains(text, w) {
			pos++
		}
	}

	mult := 1.0
	if neg > 0 && neg > pos {
		mult *= 0.5
	}
	mult *= 1 + 0.1*float64(pos)
	return mult
}

func (in *Inspector) hasPriceEvidence() bool {
	for _, ve := range in.findVisible("[class*=price], [id*=price], [itemprop=price]") {
		if rePriceText.MatchString(ve.text) || len(ve.text) <= 20 {
			return true
		}
	}
	return false
}

func (in *Inspector) hasProductInfo() bool {
	els, err := in.browser.Find("[class*=product], [id*=product], [class*=sku], [itemtype*=Product]")
	if err != nil {
		return false
	}
	for _, el := range els {
		if el.Visible() {
			return true
		}
	}
	return false
}

func (in *Inspector) hasVisibleForm() bool {
	els, err := in.browser.Find("form")
	if err != nil {
		return false
	}
	for _, el := range els {
		if el.Visible() {
			return true
		}
	}
	return false
}

// registrableDomain extracts the eTLD+1 for vendor dispatch; falls back to
// the bare hostname for IPs and unlisted suffixes.
func registrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
