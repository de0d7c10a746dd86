package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// RodBrowser implements plugin.Browser on top of Rod (headless Chrome).
// One page is created lazily and reused sequentially across checks; the
// mutex serializes access since the session is a single stateful resource.
type RodBrowser struct {
	browser     *rod.Browser
	page        *rod.Page
	mu          sync.Mutex
	pageTimeout time.Duration
	userAgent   string
	log         *zap.Logger
}

// RodBrowserConfig holds configuration for the browser driver.
type RodBrowserConfig struct {
	Timeout     time.Duration
	PageTimeout time.Duration
	UserAgent   string
}

// NewRodBrowser launches a headless Chrome and connects to it.
func NewRodBrowser(cfg RodBrowserConfig, log *zap.Logger) (*RodBrowser, error) {
	u, err := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, err
	}

	pageTimeout := cfg.PageTimeout
	if pageTimeout == 0 {
		pageTimeout = 15 * time.Second
	}

	return &RodBrowser{
		browser:     browser,
		pageTimeout: pageTimeout,
		userAgent:   cfg.UserAgent,
		log:         log,
	}, nil
}

// Navigate loads the URL in the shared page and waits for it to settle.
func (b *RodBrowser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return err
		}
		if b.userAgent != "" {
			_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
				UserAgent: b.userAgent,
			})
		}
		b.page = page
	}

	page := b.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}

	if err := page.WaitStable(b.pageTimeout); err != nil {
		// A page that never settles can still be inspected; only note it.
		if !strings.Contains(err.Error(), "context canceled") {
			b.log.Debug("page did not fully stabilize",
				zap.String("url", url), zap.Error(err))
		}
	}
	return nil
}

// Find returns all elements matching the CSS selector on the current page.
func (b *RodBrowser) Find(selector string) ([]plugin.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return nil, nil
	}

	els, err := b.page.Elements(selector)
	if err != nil {
		return nil, err
	}

	out := make([]plugin.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

// Quit closes the shared page and the browser.
func (b *RodBrowser) Quit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil {
		_ = b.page.Close()
		b.page = nil
	}
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}

// rodElement adapts *rod.Element to plugin.Element. Accessors swallow driver
// errors into zero values per the interface contract.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Tag() string {
	res, err := e.el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *rodElement) Text() string {
	text, err := e.el.Text()
	if err != nil {
		return ""
	}
	return text
}

func (e *rodElement) Attr(name string) string {
	val, err := e.el.Attribute(name)
	if err != nil || val == nil {
		return ""
	}
	return *val
}

func (e *rodElement) Visible() bool {
	vis, err := e.el.Visible()
	if err != nil {
		return false
	}
	return vis
}

func (e *rodElement) Enabled() bool {
	res, err := e.el.Eval(`() => !this.disabled`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *rodElement) Parent() plugin.Element {
	parent, err := e.el.Parent()
	if err != nil || parent == nil {
		return nil
	}
	return &rodElement{el: parent}
}
