// Package output writes check session reports to disk.
package output

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// CheckLine is one checked URL in a session report.
type CheckLine struct {
	URL          string
	Status       plugin.Status
	Confidence   float64
	Reason       string
	Signals      []plugin.Signal
	ResponseTime time.Duration
	Cached       bool
}

// TextWriter accumulates check outcomes and writes a plain text report,
// mirroring the terminal output (without ANSI color codes).
type TextWriter struct {
	path  string
	lines []string
	mu    sync.Mutex

	startedAt time.Time
	total     int
	byStatus  map[plugin.Status]int
}

// NewTextWriter creates a new plain-text report writer.
func NewTextWriter(path string) *TextWriter {
	return &TextWriter{
		path:      path,
		startedAt: time.Now(),
		byStatus:  make(map[plugin.Status]int),
	}
}

func (w *TextWriter) Name() string { return "text" }

// WriteCheck records one check outcome.
func (w *TextWriter) WriteCheck(line CheckLine) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cached := ""
	if line.Cached {
		cached = " (cached)"
	}
	w.lines = append(w.lines, fmt.Sprintf("  [%s] %s  %.0f%% %s (%s)%s",
		string(line.Status), line.URL, line.Confidence*100, line.Reason,
		fmtDur(line.ResponseTime), cached))

	for _, sig := range line.Signals {
		w.lines = append(w.lines, fmt.Sprintf("      +-- %s: %s conf=%.2f weight=%.2f",
			sig.Method, string(sig.Status), sig.Confidence, sig.Weight))
	}

	w.total++
	w.byStatus[line.Status]++
	return nil
}

// Finalize writes the accumulated report to the output path.
func (w *TextWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder

	// Banner
	b.WriteString("\n  STOCKWATCH v1.0.0\n")
	b.WriteString("  Multi-signal stock availability watcher\n")
	b.WriteString("  " + strings.Repeat("-", 54) + "\n\n")

	b.WriteString(fmt.Sprintf("  Started: %s\n\n", w.startedAt.Format(time.RFC1123)))

	for _, line := range w.lines {
		b.WriteString(line + "\n")
	}

	// Summary
	b.WriteString("\n  " + strings.Repeat("-", 50) + "\n")
	b.WriteString("  Session complete\n")
	b.WriteString(fmt.Sprintf("    Checks: %d in %s\n", w.total, fmtDur(time.Since(w.startedAt))))

	if w.total > 0 {
		b.WriteString("    Status: ")
		first := true
		for _, s := range []plugin.Status{plugin.StatusAvailable, plugin.StatusUnavailable, plugin.StatusUnknown} {
			if count := w.byStatus[s]; count > 0 {
				if !first {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s:%d", string(s), count))
				first = false
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	return os.WriteFile(w.path, []byte(b.String()), 0644)
}

// ---------- helpers ----------

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
