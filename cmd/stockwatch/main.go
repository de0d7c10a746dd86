package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/internal/engine"
	"github.com/ramkansal/stockwatch/internal/history"
	"github.com/ramkansal/stockwatch/internal/monitor"
	"github.com/ramkansal/stockwatch/internal/notify"
	"github.com/ramkansal/stockwatch/internal/output"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

var version = "1.0.0"

// flags holds all parsed CLI options.
type flags struct {
	// Mode
	watch bool

	// Targets
	urls []string

	// Request
	userAgent string
	timeout   int
	proxy     string
	headers   []string

	// Features
	noBrowser     bool
	noAPIProbe    bool
	noVendorRules bool
	threshold     float64

	// Watch
	interval time.Duration
	webhooks []string
	historyP string

	// Output
	output  string
	silent  bool
	verbose bool
	noColor bool

	// Config file
	configFile string

	// Meta
	showHelp    bool
	showVersion bool
}

func main() {
	enableANSI()
	f := parseFlags()

	if f.showVersion {
		fmt.Printf("stockwatch v%s\n", version)
		os.Exit(0)
	}
	if f.showHelp || len(f.urls) == 0 {
		printUsage()
		if len(f.urls) == 0 && !f.showHelp {
			os.Exit(1)
		}
		os.Exit(0)
	}

	for i, u := range f.urls {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			f.urls[i] = "https://" + u
		}
	}

	cfg, err := buildConfig(f)
	if err != nil {
		fatal("invalid configuration: %v", err)
	}

	log := buildLogger(f)
	defer log.Sync()

	if f.watch {
		runWatch(cfg, f, log)
		return
	}
	runCheck(cfg, f, log)
}

// runCheck performs a one-shot check of each URL and prints the verdict.
func runCheck(cfg *config.Config, f *flags, log *zap.Logger) {
	eng := engine.New(cfg, nil, log)
	if err := eng.Init(); err != nil {
		fatal("initialization failed: %v", err)
	}
	defer eng.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if !f.silent {
		printBanner()
		fmt.Println()
	}

	var report *output.TextWriter
	if f.output != "" {
		report = output.NewTextWriter(f.output)
	}

	exitCode := 0
	for _, u := range f.urls {
		diag := eng.ComprehensiveCheck(ctx, u)
		printDiagnostic(u, diag, f)
		if report != nil {
			report.WriteCheck(output.CheckLine{
				URL:          u,
				Status:       diag.FinalStatus,
				Confidence:   diag.Result.Confidence,
				Reason:       diag.Result.Reason,
				Signals:      diag.Result.Signals,
				ResponseTime: diag.ResponseTime,
				Cached:       diag.Cached,
			})
		}
		if diag.FinalStatus == plugin.StatusUnknown {
			exitCode = 2
		}
	}
	if report != nil {
		if err := report.Finalize(); err != nil {
			fatal("write report: %v", err)
		}
	}
	os.Exit(exitCode)
}

// runWatch polls the URLs until interrupted.
func runWatch(cfg *config.Config, f *flags, log *zap.Logger) {
	ctx, cancel := signalContext()
	defer cancel()

	var sink plugin.HistorySink
	if cfg.HistoryPath != "" {
		s, err := history.NewSQLiteSink(ctx, cfg.HistoryPath)
		if err != nil {
			fatal("history database: %v", err)
		}
		defer s.Close()
		sink = s
	}

	eng := engine.New(cfg, sink, log)
	if err := eng.Init(); err != nil {
		fatal("initialization failed: %v", err)
	}
	defer eng.Close()

	var notifiers []plugin.Notifier
	for _, url := range cfg.Webhooks {
		notifiers = append(notifiers, notify.NewWebhookNotifier(url, cfg.RequestTimeout))
	}
	throttle := notify.NewThrottle(notify.Config{
		Cooldown:            cfg.NotifyCooldown,
		AggregationInterval: cfg.AggregationInterval,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	}, notifiers, log)

	poller := monitor.New(monitor.Config{
		Interval:   cfg.PollInterval,
		RatePerMin: cfg.RatePerMin,
		Targets:    f.urls,
	}, eng, throttle, log)

	if !f.silent {
		printBanner()
		fmt.Printf("\n  %s %d target(s), every %s\n\n",
			clr("cyan", "Watching:"), len(f.urls), cfg.PollInterval)
	}

	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		fatal("watch loop: %v", err)
	}
	if !f.silent {
		fmt.Fprintf(os.Stderr, "\n  %s stopped\n", clr("yellow", "!"))
	}
}

func printDiagnostic(url string, diag engine.Diagnostic, f *flags) {
	status := string(diag.FinalStatus)
	switch diag.FinalStatus {
	case plugin.StatusAvailable:
		status = clr("green", status)
	case plugin.StatusUnavailable:
		status = clr("red", status)
	default:
		status = clr("yellow", status)
	}

	cached := ""
	if diag.Cached {
		cached = clr("dim", " (cached)")
	}
	fmt.Printf("  %s %s %s%s\n", clr("cyan", "●"), url, status, cached)
	fmt.Printf("      %s %.0f%%  %s %s\n",
		clr("dim", "confidence:"), diag.Result.Confidence*100,
		clr("dim", "reason:"), diag.Result.Reason)
	if diag.GatedByThreshold {
		fmt.Printf("      %s raw verdict %q fell below the confidence threshold\n",
			clr("yellow", "!"), string(diag.Result.Status))
	}

	if f.verbose {
		for _, sig := range diag.Result.Signals {
			fmt.Printf("      %s %s=%s conf=%.2f weight=%.2f %s\n",
				clr("dim", "├─"), sig.Method, string(sig.Status),
				sig.Confidence, sig.Weight, clr("dim", sig.Reason))
		}
		for method, msg := range diag.MethodErrors {
			fmt.Printf("      %s %s: %s\n", clr("red", "✗"), method, msg)
		}
		fmt.Printf("      %s %s, http %d, %d bytes\n",
			clr("dim", "└─"), fmtDur(diag.ResponseTime), diag.HTTPStatus, diag.ContentLength)
	}
	fmt.Println()
}

func buildLogger(f *flags) *zap.Logger {
	if f.silent {
		return zap.NewNop()
	}
	var cfg zap.Config
	if f.verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// ---------- Flag parsing ----------

func parseFlags() *flags {
	f := &flags{
		timeout:   10,
		threshold: -1,
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			fatal("flag %s requires an argument", arg)
			return ""
		}
		nextInt := func() int {
			v := next()
			var n int
			fmt.Sscanf(v, "%d", &n)
			return n
		}
		nextFloat := func() float64 {
			v := next()
			var n float64
			fmt.Sscanf(v, "%g", &n)
			return n
		}
		nextDur := func(fallback time.Duration) time.Duration {
			d, err := time.ParseDuration(next())
			if err != nil {
				return fallback
			}
			return d
		}

		switch arg {
		// Mode
		case "-w", "--watch":
			f.watch = true

		// Targets
		case "-u", "--url":
			f.urls = append(f.urls, next())

		// Request
		case "-ua", "--user-agent":
			f.userAgent = next()
		case "-t", "--timeout":
			f.timeout = nextInt()
		case "-px", "--proxy":
			f.proxy = next()
		case "-H", "--header":
			f.headers = append(f.headers, next())

		// Features
		case "-nb", "--no-browser":
			f.noBrowser = true
		case "-na", "--no-api-probe":
			f.noAPIProbe = true
		case "-nv", "--no-vendor-rules":
			f.noVendorRules = true
		case "-ct", "--confidence-threshold":
			f.threshold = nextFloat()

		// Watch
		case "-i", "--interval":
			f.interval = nextDur(0)
		case "-wh", "--webhook":
			f.webhooks = append(f.webhooks, next())
		case "-db", "--history-db":
			f.historyP = next()

		// Output
		case "-o", "--output":
			f.output = next()
		case "-si", "--silent":
			f.silent = true
		case "-v", "--verbose":
			f.verbose = true
		case "-nc", "--no-color":
			f.noColor = true

		// Config file
		case "--config":
			f.configFile = next()

		// Meta
		case "-h", "--help":
			f.showHelp = true
		case "-V", "--version":
			f.showVersion = true

		default:
			// Treat bare args as URLs
			if !strings.HasPrefix(arg, "-") {
				f.urls = append(f.urls, arg)
			} else {
				fmt.Fprintf(os.Stderr, "Unknown flag: %s (use --help for usage)\n", arg)
				os.Exit(1)
			}
		}
	}

	if f.noColor {
		colorEnabled = false
	}
	return f
}

func buildConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}

	if f.userAgent != "" {
		cfg.UserAgent = f.userAgent
	}
	if f.timeout > 0 {
		cfg.RequestTimeout = time.Duration(f.timeout) * time.Second
	}
	if f.proxy != "" {
		cfg.Proxy = f.proxy
	}
	if len(f.headers) > 0 {
		cfg.CustomHeaders = append(cfg.CustomHeaders, f.headers...)
	}
	if f.noBrowser {
		cfg.EnableBrowser = false
	}
	if f.noAPIProbe {
		cfg.EnableAPIDiscovery = false
	}
	if f.noVendorRules {
		cfg.EnableVendorRules = false
	}
	if f.threshold >= 0 {
		cfg.ConfidenceThreshold = f.threshold
	}
	if f.interval > 0 {
		cfg.PollInterval = f.interval
	}
	if len(f.webhooks) > 0 {
		cfg.Webhooks = append(cfg.Webhooks, f.webhooks...)
	}
	if f.historyP != "" {
		cfg.HistoryPath = f.historyP
	}
	if len(f.urls) == 0 {
		f.urls = cfg.Targets
	}

	return cfg, cfg.Validate()
}

// ---------- Help / banner ----------

func printUsage() {
	printBanner()
	fmt.Print(`
USAGE:
  stockwatch [flags] <url> [<url>...]
  stockwatch -u https://store.example.com/product/42
  stockwatch -w -i 2m -wh https://hooks.example.com/stock https://store.example.com/product/42

MODE:
  -w,    --watch                     poll the targets continuously instead of a one-shot check

TARGET:
  -u,    --url <string>              product URL to check (can be used multiple times)

REQUEST:
  -ua,   --user-agent <string>       custom user-agent string
  -t,    --timeout <int>             time to wait for request in seconds (default 10)
  -px,   --proxy <string>            http/socks5 proxy to use
  -H,    --header <string>           custom header in "Key: Value" format (can be used multiple times)

FEATURES:
  -nb,   --no-browser                disable headless browser element inspection
  -na,   --no-api-probe              disable API endpoint discovery and probing
  -nv,   --no-vendor-rules           disable vendor-specific page rules
  -ct,   --confidence-threshold <f>  minimum fused confidence to report a verdict (default 0.6)

WATCH:
  -i,    --interval <duration>       poll interval (default 3m)
  -wh,   --webhook <string>          webhook URL for availability notifications (can be repeated)
  -db,   --history-db <string>       path to the sqlite history database (default "stockwatch.db")

OUTPUT:
  -o,    --output <string>           save session report to file (disabled by default)
  -si,   --silent                    suppress all output except errors
  -v,    --verbose                   show per-method signals and timings
  -nc,   --no-color                  disable colored output

CONFIG:
         --config <string>           path to YAML configuration file

META:
  -h,    --help                      show this help message
  -V,    --version                   show version

`)
}

func printBanner() {
	logo := `
  ███████╗████████╗ ██████╗  ██████╗██╗  ██╗██╗    ██╗
  ██╔════╝╚══██╔══╝██╔═══██╗██╔════╝██║ ██╔╝██║    ██║
  ███████╗   ██║   ██║   ██║██║     █████╔╝ ██║ █╗ ██║
  ╚════██║   ██║   ██║   ██║██║     ██╔═██╗ ██║███╗██║
  ███████║   ██║   ╚██████╔╝╚██████╗██║  ██╗╚███╔███╔╝
  ╚══════╝   ╚═╝    ╚═════╝  ╚═════╝╚═╝  ╚═╝ ╚══╝╚══╝`
	fmt.Println(clr("cyan", logo))
	fmt.Printf("  %s  %s\n", clr("dim", "Multi-signal stock availability watcher"), clr("dim", "v"+version))
	fmt.Printf("  %s\n", clr("dim", strings.Repeat("─", 54)))
}

// ---------- Utilities ----------

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	registerSignals(sig)
	go func() {
		<-sig
		fmt.Fprintf(os.Stderr, "\n  %s Interrupt received, stopping...\n", clr("yellow", "!"))
		cancel()
	}()
	return ctx, cancel
}

func fmtDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

var colorEnabled = true

func clr(color, text string) string {
	if !colorEnabled {
		return text
	}
	codes := map[string]string{
		"red":    "\033[31m",
		"green":  "\033[32m",
		"yellow": "\033[33m",
		"cyan":   "\033[36m",
		"dim":    "\033[2m",
		"bold":   "\033[1m",
		"reset":  "\033[0m",
	}
	c, ok := codes[color]
	if !ok {
		return text
	}
	return c + text + codes["reset"]
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\n  %s %s\n\n", clr("red", "ERROR:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}
