package inspector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// ErrVendorRule wraps failures raised inside a vendor-specific handler. The
// inspector falls through to the generic chain when it sees one.
var ErrVendorRule = errors.New("vendor rule failed")

// Handler is a vendor-specific inspection strategy. It runs against the
// already-navigated browser session and may return StatusUnknown to decline.
type Handler func(ctx context.Context, b plugin.Browser, w config.Weights) (plugin.Signal, error)

// VendorTable maps registrable domain suffixes to handlers. Dispatch is an
// ordered fallback chain: vendor handler, then the generic CMS detector, then
// the fully generic inspection flow.
type VendorTable struct {
	handlers map[string]Handler
}

// NewVendorTable creates a table preloaded with the built-in vendor rules.
func NewVendorTable() *VendorTable {
	t := &VendorTable{handlers: make(map[string]Handler)}
	t.Register("amazon.com", amazonHandler)
	t.Register("amazon.co.jp", amazonHandler)
	t.Register("amazon.co.uk", amazonHandler)
	t.Register("amazon.de", amazonHandler)
	t.Register("bestbuy.com", bestBuyHandler)
	t.Register("jd.com", jdHandler)
	t.Register("popmart.com", popmartHandler)
	return t
}

// Register adds or replaces the handler for a registrable domain suffix.
func (t *VendorTable) Register(suffix string, h Handler) {
	t.handlers[strings.ToLower(suffix)] = h
}

// Lookup returns the handler matching the registrable domain, if any.
func (t *VendorTable) Lookup(domain string) (Handler, bool) {
	domain = strings.ToLower(domain)
	for suffix, h := range t.handlers {
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return h, true
		}
	}
	return nil, false
}

// ---------- vendor handlers ----------

// amazonHandler reads the availability block that Amazon renders on every
// product page.
func amazonHandler(_ context.Context, b plugin.Browser, w config.Weights) (plugin.Signal, error) {
	els, err := b.Find("#availability span, #availability")
	if err != nil {
		return plugin.Signal{}, fmt.Errorf("%w: amazon: %v", ErrVendorRule, err)
	}
	for _, el := range els {
		if !el.Visible() {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(el.Text()))
		if text == "" {
			continue
		}
		switch {
		case strings.Contains(text, "currently unavailable"),
			strings.Contains(text, "out of stock"),
			strings.Contains(text, "在庫切れ"):
			return vendorSignal(plugin.StatusUnavailable, w.QtyZeroConf, "amazon availability: "+text), nil
		case strings.Contains(text, "in stock"),
			strings.Contains(text, "left in stock"),
			strings.Contains(text, "在庫あり"):
			return vendorSignal(plugin.StatusAvailable, w.QtyPositiveConf, "amazon availability: "+text), nil
		}
	}

	// No availability block but a live add-to-cart button is decisive too.
	if btns, err := b.Find("#add-to-cart-button"); err == nil {
		for _, btn := range btns {
			if btn.Visible() && btn.Enabled() {
				return vendorSignal(plugin.StatusAvailable, w.StrongBuyConf, "amazon add-to-cart button enabled"), nil
			}
		}
	}
	return plugin.Unknown(MethodInspector, "amazon: no availability block"), nil
}

// bestBuyHandler keys off the add-to-cart button state, which Best Buy swaps
// to "Sold Out" / "Coming Soon" when unavailable.
func bestBuyHandler(_ context.Context, b plugin.Browser, w config.Weights) (plugin.Signal, error) {
	els, err := b.Find("button.add-to-cart-button, button[data-button-state]")
	if err != nil {
		return plugin.Signal{}, fmt.Errorf("%w: bestbuy: %v", ErrVendorRule, err)
	}
	for _, el := range els {
		if !el.Visible() {
			continue
		}
		state := strings.ToLower(el.Attr("data-button-state"))
		text := strings.ToLower(el.Text())
		switch {
		case state == "sold_out" || strings.Contains(text, "sold out"):
			return vendorSignal(plugin.StatusUnavailable, w.QtyZeroConf, "bestbuy button: sold out"), nil
		case state == "coming_soon" || strings.Contains(text, "coming soon"):
			return vendorSignal(plugin.StatusUnavailable, w.WaitlistConf, "bestbuy button: coming soon"), nil
		case (state == "add_to_cart" || strings.Contains(text, "add to cart")) && el.Enabled():
			return vendorSignal(plugin.StatusAvailable, w.QtyPositiveConf, "bestbuy button: add to cart"), nil
		}
	}
	return plugin.Unknown(MethodInspector, "bestbuy: no recognizable button state"), nil
}

// jdHandler inspects JD.com's stock state block.
func jdHandler(_ context.Context, b plugin.Browser, w config.Weights) (plugin.Signal, error) {
	els, err := b.Find(".store-prompt, #store-prompt, .itemover-tip, #btn-notify")
	if err != nil {
		return plugin.Signal{}, fmt.Errorf("%w: jd: %v", ErrVendorRule, err)
	}
	for _, el := range els {
		if !el.Visible() {
			continue
		}
		text := el.Text()
		if strings.Contains(text, "无货") || strings.Contains(text, "已下柜") ||
			strings.Contains(text, "到货通知") {
			return vendorSignal(plugin.StatusUnavailable, w.QtyZeroConf, "jd stock state: "+strings.TrimSpace(text)), nil
		}
		if strings.Contains(text, "有货") || strings.Contains(text, "现货") {
			return vendorSignal(plugin.StatusAvailable, w.QtyPositiveConf, "jd stock state: "+strings.TrimSpace(text)), nil
		}
	}
	if btns, err := b.Find("#InitCartUrl, .btn-addtocart"); err == nil {
		for _, btn := range btns {
			if btn.Visible() && btn.Enabled() {
				return vendorSignal(plugin.StatusAvailable, w.StrongBuyConf, "jd add-to-cart button enabled"), nil
			}
		}
	}
	return plugin.Unknown(MethodInspector, "jd: no stock state block"), nil
}

// popmartHandler handles Pop Mart's storefront, which hides the buy button
// entirely and shows a notify block when a figure sells out.
func popmartHandler(_ context.Context, b plugin.Browser, w config.Weights) (plugin.Signal, error) {
	els, err := b.Find("div[class*=notifyMe], div[class*=soldOut], button[class*=notify]")
	if err != nil {
		return plugin.Signal{}, fmt.Errorf("%w: popmart: %v", ErrVendorRule, err)
	}
	for _, el := range els {
		if el.Visible() {
			return vendorSignal(plugin.StatusUnavailable, w.WaitlistConf, "popmart notify block visible"), nil
		}
	}
	if btns, err := b.Find("div[class*=buyNow], button[class*=addCart]"); err == nil {
		for _, btn := range btns {
			if btn.Visible() && btn.Enabled() {
				return vendorSignal(plugin.StatusAvailable, w.StrongBuyConf, "popmart buy button enabled"), nil
			}
		}
	}
	return plugin.Unknown(MethodInspector, "popmart: no decisive block"), nil
}

// ---------- generic CMS detection ----------

// cmsRule is one content-management-system fingerprint plus its stock
// selectors. Detection is by marker selector presence, then the state
// selectors decide.
type cmsRule struct {
	name         string
	markers      []string
	outSelectors []string
	buySelectors []string
}

var cmsRules = []cmsRule{
	{
		name:         "shopify",
		markers:      []string{"form[action*='/cart/add']", ".shopify-section", "[data-shopify]"},
		outSelectors: []string{".sold-out", ".product-form--sold-out", "button[disabled][name=add]"},
		buySelectors: []string{"button[name=add]", ".product-form__submit"},
	},
	{
		name:         "woocommerce",
		markers:      []string{".woocommerce", "body[class*=woocommerce]", ".single_add_to_cart_button"},
		outSelectors: []string{"p.stock.out-of-stock", ".out-of-stock"},
		buySelectors: []string{".single_add_to_cart_button"},
	},
	{
		name:         "magento",
		markers:      []string{"#product-addtocart-button", "body[class*=catalog-product]"},
		outSelectors: []string{".stock.unavailable"},
		buySelectors: []string{"#product-addtocart-button"},
	},
}

// detectCMS runs the generic CMS-pattern chain. Returns Unknown when no CMS
// fingerprint matches or the matched CMS gives no decisive state.
func detectCMS(b plugin.Browser, w config.Weights) plugin.Signal {
	for _, rule := range cmsRules {
		if !anyPresent(b, rule.markers) {
			continue
		}
		for _, sel := range rule.outSelectors {
			if els, err := b.Find(sel); err == nil {
				for _, el := range els {
					if el.Visible() {
						return vendorSignal(plugin.StatusUnavailable, w.QtyZeroConf,
							fmt.Sprintf("%s out-of-stock marker %q", rule.name, sel))
					}
				}
			}
		}
		for _, sel := range rule.buySelectors {
			if els, err := b.Find(sel); err == nil {
				for _, el := range els {
					if !el.Visible() {
						continue
					}
					if el.Enabled() {
						return vendorSignal(plugin.StatusAvailable, w.StrongBuyConf,
							fmt.Sprintf("%s buy control %q enabled", rule.name, sel))
					}
					return vendorSignal(plugin.StatusUnavailable, w.DisabledBuyConf,
						fmt.Sprintf("%s buy control %q disabled", rule.name, sel))
				}
			}
		}
		return plugin.Unknown(MethodInspector, rule.name+": fingerprint matched, state inconclusive")
	}
	return plugin.Unknown(MethodInspector, "no cms fingerprint")
}

func anyPresent(b plugin.Browser, selectors []string) bool {
	for _, sel := range selectors {
		if els, err := b.Find(sel); err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

func vendorSignal(st plugin.Status, conf float64, evidence string) plugin.Signal {
	return plugin.Signal{
		Method:     MethodInspector,
		Status:     st,
		Confidence: conf,
		Evidence:   evidence,
	}
}
