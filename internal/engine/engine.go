// Package engine orchestrates a stock check: it fans the signal extractors
// out over a target URL, fuses their opinions, caches the verdict, and
// records it to history.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/ramkansal/stockwatch/internal/analyzer"
	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/internal/fetcher"
	"github.com/ramkansal/stockwatch/internal/fusion"
	"github.com/ramkansal/stockwatch/internal/inspector"
	"github.com/ramkansal/stockwatch/internal/prober"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// Target is a monitored product URL with its running state. Created on
// first observation, mutated by every check, never deleted by the engine.
type Target struct {
	ID         string
	URL        string
	Domain     string
	LastStatus plugin.Status
	Successes  int
	Failures   int
}

// Diagnostic is the full per-method breakdown returned by ComprehensiveCheck.
type Diagnostic struct {
	URL              string            `json:"url"`
	Result           plugin.CheckResult `json:"result"`
	FinalStatus      plugin.Status     `json:"final_status"`
	GatedByThreshold bool              `json:"gated_by_threshold"`
	HTTPStatus       int               `json:"http_status"`
	ResponseTime     time.Duration     `json:"response_time"`
	ContentLength    int               `json:"content_length"`
	MethodErrors     map[string]string `json:"method_errors,omitempty"`
	Cached           bool              `json:"cached"`
}

// Engine owns all detection components and the mutable per-URL state.
type Engine struct {
	cfg *config.Config
	log *zap.Logger

	fetch        *fetcher.HTTPFetcher
	fingerprints *analyzer.FingerprintTracker
	keywords     *analyzer.KeywordClassifier
	structure    *analyzer.StructureAnalyzer
	probe        *prober.Prober
	fuser        *fusion.Engine
	cache        *resultCache
	history      plugin.HistorySink // optional

	insp     *inspector.Inspector // nil until a browser is attached
	browser  plugin.Browser
	inspMu   sync.Mutex
	inspDown bool // browser failed; inspector disabled for process lifetime

	targetMu sync.Mutex
	targets  map[string]*Target
}

// New creates an engine with the standard component set. history may be nil.
func New(cfg *config.Config, history plugin.HistorySink, log *zap.Logger) *Engine {
	keywords := analyzer.NewKeywordClassifier(cfg.Weights)
	return &Engine{
		cfg: cfg,
		log: log,
		fetch: fetcher.NewHTTPFetcher(fetcher.HTTPFetcherConfig{
			UserAgent:       cfg.UserAgent,
			Timeout:         cfg.RequestTimeout,
			MaxResponseSize: cfg.MaxResponseSize,
			Proxy:           cfg.Proxy,
			CustomHeaders:   cfg.CustomHeaders,
		}, log),
		fingerprints: analyzer.NewFingerprintTracker(),
		keywords:     keywords,
		structure:    analyzer.NewStructureAnalyzer(),
		probe: prober.New(prober.Config{
			Timeout:      cfg.RequestTimeout,
			UserAgent:    cfg.UserAgent,
			MaxEndpoints: cfg.MaxEndpoints,
			TopK:         cfg.ProbeTopK,
		}, keywords, log),
		fuser:   fusion.New(cfg.Weights),
		cache:   newResultCache(cfg.CacheTTL),
		history: history,
		targets: make(map[string]*Target),
	}
}

// Init launches the headless browser when browser-based inspection is
// enabled. A launch failure disables the inspector for the process lifetime
// instead of failing the engine; every other method keeps working.
func (e *Engine) Init() error {
	if !e.cfg.EnableBrowser {
		return nil
	}
	browser, err := fetcher.NewRodBrowser(fetcher.RodBrowserConfig{
		Timeout:     e.cfg.BrowserTimeout,
		PageTimeout: e.cfg.PageTimeout,
		UserAgent:   e.cfg.UserAgent,
	}, e.log)
	if err != nil {
		e.inspMu.Lock()
		e.inspDown = true
		e.inspMu.Unlock()
		e.log.Warn("browser unavailable, element inspection disabled", zap.Error(err))
		return nil
	}
	e.AttachBrowser(browser)
	return nil
}

// AttachBrowser wires a browser capability into the engine. Tests use this
// to substitute a scripted fake for real Chrome.
func (e *Engine) AttachBrowser(b plugin.Browser) {
	e.inspMu.Lock()
	defer e.inspMu.Unlock()
	e.browser = b
	var vendors *inspector.VendorTable
	if e.cfg.EnableVendorRules {
		vendors = inspector.NewVendorTable()
	}
	e.insp = inspector.New(b, vendors, e.cfg.Weights, e.log)
	e.inspDown = false
}

// Close releases the browser and fetcher.
func (e *Engine) Close() error {
	_ = e.fetch.Close()
	e.inspMu.Lock()
	defer e.inspMu.Unlock()
	if e.browser != nil {
		return e.browser.Quit()
	}
	return nil
}

// CheckStock runs a full check against url and returns the gated verdict.
// A fused confidence below the configured threshold is reported as Unknown.
// The method never panics outward; residual failures degrade to Unknown
// with a descriptive error.
func (e *Engine) CheckStock(ctx context.Context, targetURL string) (status plugin.Status, info plugin.CheckInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("check panicked", zap.String("url", targetURL), zap.Any("panic", r))
			status = plugin.StatusUnknown
			info = plugin.CheckInfo{FinalStatus: plugin.StatusUnknown}
			err = fmt.Errorf("internal error during check: %v", r)
		}
	}()

	diag := e.ComprehensiveCheck(ctx, targetURL)

	info = plugin.CheckInfo{
		ResponseTime:  diag.ResponseTime,
		HTTPStatus:    diag.HTTPStatus,
		ContentLength: diag.ContentLength,
		Method:        dominantMethod(diag.Result.Signals),
		Confidence:    diag.Result.Confidence,
		MethodsUsed:   methodsUsed(diag.Result.Signals),
		FinalStatus:   diag.FinalStatus,
	}
	if diag.Result.Reason == fusion.ReasonNoMethods {
		return diag.FinalStatus, info, errors.New(fusion.ReasonNoMethods)
	}
	return diag.FinalStatus, info, nil
}

// ComprehensiveCheck runs (or serves from cache) a full check and returns
// every per-method signal plus the fusion reason, for human-facing debugging.
func (e *Engine) ComprehensiveCheck(ctx context.Context, targetURL string) Diagnostic {
	target := e.upsertTarget(targetURL)

	if cached, ok := e.cache.Get(targetURL); ok {
		final, gated := e.gate(cached)
		return Diagnostic{
			URL:              targetURL,
			Result:           cached,
			FinalStatus:      final,
			GatedByThreshold: gated,
			Cached:           true,
		}
	}

	start := time.Now()
	outcome := e.runExtractors(ctx, targetURL)
	result := e.fuser.Fuse(outcome.signals)
	e.cache.Put(targetURL, result)

	final, gated := e.gate(result)

	e.targetMu.Lock()
	target.LastStatus = final
	if result.Reason == fusion.ReasonNoMethods {
		target.Failures++
	} else {
		target.Successes++
	}
	e.targetMu.Unlock()

	diag := Diagnostic{
		URL:              targetURL,
		Result:           result,
		FinalStatus:      final,
		GatedByThreshold: gated,
		HTTPStatus:       outcome.httpStatus,
		ResponseTime:     time.Since(start),
		ContentLength:    outcome.contentLength,
		MethodErrors:     outcome.errors,
	}
	e.record(ctx, target, diag)

	e.log.Info("check complete",
		zap.String("url", targetURL),
		zap.String("status", string(result.Status)),
		zap.String("final_status", string(final)),
		zap.Float64("confidence", result.Confidence),
		zap.String("reason", result.Reason),
		zap.Duration("took", diag.ResponseTime))
	return diag
}

// checkOutcome carries the extractor fan-in back to the caller.
type checkOutcome struct {
	signals       []plugin.Signal
	errors        map[string]string
	httpStatus    int
	contentLength int
}

// runExtractors fans out the content analyzers, the element inspector, and
// the API prober, and collects whatever signals survive. A failing extractor
// contributes nothing; it never aborts its siblings.
func (e *Engine) runExtractors(ctx context.Context, targetURL string) *checkOutcome {
	outcome := &checkOutcome{errors: make(map[string]string)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	addSignal := func(sig plugin.Signal) {
		mu.Lock()
		outcome.signals = append(outcome.signals, sig)
		mu.Unlock()
	}
	addError := func(method, msg string) {
		mu.Lock()
		outcome.errors[method] = msg
		mu.Unlock()
	}

	// Content branch: fetch once, then fingerprint, keywords, structure.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverInto(addError, "content_analysis")

		page, err := e.fetch.Fetch(targetURL)
		if page != nil {
			mu.Lock()
			outcome.httpStatus = page.StatusCode
			outcome.contentLength = page.ResponseSize
			mu.Unlock()
		}
		if err != nil {
			addError("fetch", err.Error())
			return
		}

		changed, _ := e.fingerprints.Update(targetURL, page.RawHTML)
		addSignal(e.keywords.Classify(page.RawHTML))
		ps := e.structure.Analyze(page.RawHTML)
		addSignal(e.structure.Signal(ps, changed))
	}()

	// Inspector branch: navigates on its own through the browser session.
	if insp, ok := e.inspectorIfUp(); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverInto(addError, inspector.MethodInspector)

			sig, details := insp.Inspect(ctx, targetURL)
			if msg, failed := details["error"]; failed {
				addError(inspector.MethodInspector, msg)
				return
			}
			addSignal(sig)
		}()
	}

	// Prober branch: fetches its own copy of the page for discovery.
	if e.cfg.EnableAPIDiscovery {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverInto(addError, prober.MethodProber)

			page, err := e.fetch.Fetch(targetURL)
			if err != nil {
				addError(prober.MethodProber, "discovery fetch: "+err.Error())
				return
			}
			endpoints := e.probe.Discover(targetURL, page.RawHTML)
			if len(endpoints) == 0 {
				return
			}

			topK := e.probe.TopK()
			var fallback *plugin.Signal
			for i := 0; i < topK && i < len(endpoints); i++ {
				sig, err := e.probe.Probe(ctx, endpoints[i])
				if err != nil {
					addError(prober.MethodProber, err.Error())
					continue
				}
				if sig.Status != plugin.StatusUnknown {
					addSignal(sig)
					return
				}
				fallback = &sig
			}
			if fallback != nil {
				addSignal(*fallback)
			}
		}()
	}

	wg.Wait()
	return outcome
}

func (e *Engine) inspectorIfUp() (*inspector.Inspector, bool) {
	e.inspMu.Lock()
	defer e.inspMu.Unlock()
	if e.inspDown || e.insp == nil {
		return nil, false
	}
	return e.insp, true
}

// gate applies the confidence threshold: a low-confidence verdict is
// reported as Unknown regardless of its status value.
func (e *Engine) gate(result plugin.CheckResult) (plugin.Status, bool) {
	if result.Status != plugin.StatusUnknown && result.Confidence < e.cfg.ConfidenceThreshold {
		return plugin.StatusUnknown, true
	}
	return result.Status, false
}

// upsertTarget returns the Target for url, creating it on first observation.
func (e *Engine) upsertTarget(targetURL string) *Target {
	e.targetMu.Lock()
	defer e.targetMu.Unlock()

	if t, ok := e.targets[targetURL]; ok {
		return t
	}
	t := &Target{
		ID:         uuid.NewString(),
		URL:        targetURL,
		Domain:     registrableDomain(targetURL),
		LastStatus: plugin.StatusUnknown,
	}
	e.targets[targetURL] = t
	return t
}

// Target returns the tracked state for url, if the engine has seen it.
func (e *Engine) Target(targetURL string) (*Target, bool) {
	e.targetMu.Lock()
	defer e.targetMu.Unlock()
	t, ok := e.targets[targetURL]
	return t, ok
}

// record writes the check to the history sink. Fire and forget: sink
// failures are logged, never surfaced.
func (e *Engine) record(ctx context.Context, target *Target, diag Diagnostic) {
	if e.history == nil {
		return
	}
	var errMsg string
	if msg, ok := diag.MethodErrors["fetch"]; ok {
		errMsg = msg
	}
	rec := plugin.CheckRecord{
		TargetID:      target.ID,
		URL:           diag.URL,
		Status:        diag.FinalStatus,
		ResponseTime:  diag.ResponseTime,
		ErrorMessage:  errMsg,
		HTTPStatus:    diag.HTTPStatus,
		ContentLength: diag.ContentLength,
		Confidence:    diag.Result.Confidence,
		Method:        dominantMethod(diag.Result.Signals),
		CheckedAt:     diag.Result.CheckedAt,
	}
	if err := e.history.RecordCheck(ctx, rec); err != nil {
		e.log.Warn("history record failed", zap.String("url", diag.URL), zap.Error(err))
	}
}

// dominantMethod is the non-Unknown signal with the largest weighted
// confidence, or "none".
func dominantMethod(signals []plugin.Signal) string {
	best, bestScore := "none", 0.0
	for _, sig := range signals {
		if sig.Status == plugin.StatusUnknown {
			continue
		}
		if score := sig.Weight * sig.Confidence; score > bestScore {
			best, bestScore = sig.Method, score
		}
	}
	return best
}

func methodsUsed(signals []plugin.Signal) []string {
	out := make([]string, 0, len(signals))
	for _, sig := range signals {
		out = append(out, sig.Method)
	}
	return out
}

func recoverInto(addError func(method, msg string), method string) {
	if r := recover(); r != nil {
		addError(method, fmt.Sprintf("panic: %v", r))
	}
}

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
