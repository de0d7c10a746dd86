// Package plugin defines the public types and interfaces of stockwatch.
// External tools can import this package to provide custom browser drivers,
// history sinks, or notifiers without forking the project.
package plugin

import (
	"context"
	"net/http"
	"time"
)

// ---------- Core Data Types ----------

// Status is the tri-state availability verdict.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusUnknown     Status = "unknown"
)

// Signal is a single detection method's opinion about a page. Each method is
// independently fallible; signals only become a verdict after fusion.
type Signal struct {
	Method     string  `json:"method"`
	Status     Status  `json:"status"`
	Weight     float64 `json:"weight"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Evidence   string  `json:"evidence,omitempty"`
}

// Unknown returns a zero-confidence Unknown signal for the given method.
func Unknown(method, evidence string) Signal {
	return Signal{Method: method, Status: StatusUnknown, Evidence: evidence}
}

// CheckResult is the fused outcome of one stock check. Immutable once
// produced; it is the unit that gets cached and recorded to history.
type CheckResult struct {
	Status     Status    `json:"status"`
	Confidence float64   `json:"confidence"`
	Signals    []Signal  `json:"signals,omitempty"`
	Reason     string    `json:"reason"`
	CheckedAt  time.Time `json:"checked_at"`
}

// CheckInfo is the summary handed back to callers of CheckStock alongside the
// tri-state verdict.
type CheckInfo struct {
	ResponseTime  time.Duration `json:"response_time"`
	HTTPStatus    int           `json:"http_status"`
	ContentLength int           `json:"content_length"`
	Method        string        `json:"method"`
	Confidence    float64       `json:"confidence"`
	MethodsUsed   []string      `json:"methods_used"`
	FinalStatus   Status        `json:"final_status"`
}

// PageData represents a fetched page with all available data.
type PageData struct {
	URL           string        `json:"url"`
	FinalURL      string        `json:"final_url"`
	StatusCode    int           `json:"status_code"`
	Headers       http.Header   `json:"-"`
	RawHTML       string        `json:"-"`
	ContentType   string        `json:"content_type"`
	FetchedAt     time.Time     `json:"fetched_at"`
	FetchDuration time.Duration `json:"fetch_duration"`
	ResponseSize  int           `json:"response_size"`
	Error         string        `json:"error,omitempty"`
}

// ---------- Browser Capability ----------

// Element is a handle to a DOM element on the currently loaded page.
// Accessors are best-effort: a driver that loses the element mid-walk
// returns zero values rather than failing the whole inspection.
type Element interface {
	// Tag returns the lowercase tag name ("button", "div", ...).
	Tag() string

	// Text returns the rendered inner text of the element.
	Text() string

	// Attr returns the value of an attribute, or "" if absent.
	Attr(name string) string

	// Visible reports whether the element is displayed.
	Visible() bool

	// Enabled reports whether the element is interactable (not disabled).
	Enabled() bool

	// Parent returns the parent element, or nil at the document root.
	Parent() Element
}

// Browser is the minimal headless-browser capability consumed by the element
// inspector. A scripted fake can stand in for a real driver in tests.
type Browser interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Find returns all elements matching a CSS selector on the current page.
	// Visibility is not filtered; callers check Element.Visible themselves.
	Find(selector string) ([]Element, error)

	// Quit releases the underlying driver.
	Quit() error
}

// ---------- Collaborator Interfaces ----------

// CheckRecord is the unit written to the history sink after every check.
type CheckRecord struct {
	TargetID      string
	URL           string
	Status        Status
	ResponseTime  time.Duration
	ErrorMessage  string
	HTTPStatus    int
	ContentLength int
	Confidence    float64
	Method        string
	CheckedAt     time.Time
}

// HistorySink persists check records. Writes are fire-and-forget: the core
// never reads history back and ignores sink errors beyond logging them.
type HistorySink interface {
	RecordCheck(ctx context.Context, rec CheckRecord) error
	Close() error
}

// Notifier dispatches a rendered notification to one recipient channel.
type Notifier interface {
	// Name returns a human-readable identifier for this notifier.
	Name() string

	// Send delivers a message. Best-effort; the throttle does not retry.
	Send(ctx context.Context, subject, body string) error
}
