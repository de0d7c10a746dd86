// Package notify throttles and dispatches "became available" notifications.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// Item identifies one monitored product in notification state.
type Item struct {
	ID  string
	URL string
}

// Event is one pending became-available notification.
type Event struct {
	Item       Item
	Confidence float64
	ObservedAt time.Time
}

// batchHead is how many events a batched summary spells out.
const batchHead = 5

// Throttle applies the per-item cooldown and batches events over the
// aggregation window. All state is mutex-guarded; the poll loop drives it.
type Throttle struct {
	cooldown    time.Duration
	aggregation time.Duration
	threshold   float64
	notifiers   []plugin.Notifier
	log         *zap.Logger

	mu         sync.Mutex
	lastStatus map[string]plugin.Status
	cooldowns  map[string]time.Time
	pending    []Event
	lastFlush  time.Time
}

// Config holds throttle configuration.
type Config struct {
	Cooldown            time.Duration
	AggregationInterval time.Duration
	ConfidenceThreshold float64
}

// NewThrottle creates a throttle dispatching to the given notifiers.
func NewThrottle(cfg Config, notifiers []plugin.Notifier, log *zap.Logger) *Throttle {
	return &Throttle{
		cooldown:    cfg.Cooldown,
		aggregation: cfg.AggregationInterval,
		threshold:   cfg.ConfidenceThreshold,
		notifiers:   notifiers,
		log:         log,
		lastStatus:  make(map[string]plugin.Status),
		cooldowns:   make(map[string]time.Time),
		lastFlush:   time.Now(),
	}
}

// OnStatusObserved records a check outcome. An event is enqueued only when
// the status transitions into Available at or above the confidence
// threshold and the item's cooldown has lapsed. The cooldown is stamped at
// enqueue time, not at flush time.
func (t *Throttle) OnStatusObserved(item Item, status plugin.Status, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.lastStatus[item.ID]
	t.lastStatus[item.ID] = status

	if status != plugin.StatusAvailable || prev == plugin.StatusAvailable {
		return
	}
	if confidence < t.threshold {
		return
	}
	if last, ok := t.cooldowns[item.ID]; ok && time.Since(last) < t.cooldown {
		t.log.Debug("notification suppressed by cooldown",
			zap.String("item", item.ID), zap.Time("last_sent", last))
		return
	}

	t.cooldowns[item.ID] = time.Now()
	t.pending = append(t.pending, Event{Item: item, Confidence: confidence, ObservedAt: time.Now()})
	t.log.Info("availability event queued",
		zap.String("url", item.URL), zap.Float64("confidence", confidence))
}

// Due reports whether the aggregation interval has elapsed since the last
// flush attempt.
func (t *Throttle) Due() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.lastFlush) >= t.aggregation
}

// Flush dispatches pending events to every notifier: one detailed message
// for a single event, a batched summary otherwise. The queue and the
// aggregation timer are cleared unconditionally, whether or not dispatch
// succeeded. Best-effort, no retry.
func (t *Throttle) Flush(ctx context.Context) {
	t.mu.Lock()
	events := t.pending
	t.pending = nil
	t.lastFlush = time.Now()
	t.mu.Unlock()

	if len(events) == 0 {
		return
	}

	subject, body := render(events)
	for _, n := range t.notifiers {
		if err := n.Send(ctx, subject, body); err != nil {
			t.log.Warn("notification dispatch failed",
				zap.String("notifier", n.Name()), zap.Error(err))
		}
	}
}

// render formats one detailed message or a batched summary.
func render(events []Event) (subject, body string) {
	if len(events) == 1 {
		ev := events[0]
		subject = "Stock available"
		body = fmt.Sprintf("%s is in stock (confidence %.0f%%, observed %s)",
			ev.Item.URL, ev.Confidence*100, ev.ObservedAt.Format(time.RFC3339))
		return subject, body
	}

	subject = fmt.Sprintf("Stock available: %d items", len(events))
	var b strings.Builder
	head := events
	if len(head) > batchHead {
		head = head[:batchHead]
	}
	for _, ev := range head {
		fmt.Fprintf(&b, "- %s (%.0f%%)\n", ev.Item.URL, ev.Confidence*100)
	}
	if rest := len(events) - len(head); rest > 0 {
		fmt.Fprintf(&b, "...and %d more\n", rest)
	}
	return subject, b.String()
}
