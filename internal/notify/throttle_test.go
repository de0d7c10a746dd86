package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// recordingNotifier captures sent messages.
type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	err      error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Send(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return n.err
}

func (n *recordingNotifier) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

func newTestThrottle(n plugin.Notifier, cooldown time.Duration) *Throttle {
	return NewThrottle(Config{
		Cooldown:            cooldown,
		AggregationInterval: 0, // always due
		ConfidenceThreshold: 0.6,
	}, []plugin.Notifier{n}, zap.NewNop())
}

func item(id string) Item {
	return Item{ID: id, URL: "https://shop.example.com/p/" + id}
}

func TestThrottle_QueuesOnTransitionToAvailable(t *testing.T) {
	n := &recordingNotifier{}
	th := newTestThrottle(n, time.Hour)

	th.OnStatusObserved(item("1"), plugin.StatusUnavailable, 0.9)
	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.Flush(context.Background())

	require.Equal(t, 1, n.sent())
	assert.Equal(t, "Stock available", n.subjects[0])
	assert.Contains(t, n.bodies[0], "https://shop.example.com/p/1")
}

func TestThrottle_NoEventWithoutTransition(t *testing.T) {
	n := &recordingNotifier{}
	th := newTestThrottle(n, time.Hour)

	// Still available: no new event on repeat observations.
	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.Flush(context.Background())
	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.Flush(context.Background())

	assert.Equal(t, 1, n.sent())
}

func TestThrottle_ConfidenceBelowThresholdIgnored(t *testing.T) {
	n := &recordingNotifier{}
	th := newTestThrottle(n, time.Hour)

	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.4)
	th.Flush(context.Background())

	assert.Zero(t, n.sent())
}

func TestThrottle_CooldownSuppressesRepeatAlerts(t *testing.T) {
	n := &recordingNotifier{}
	th := newTestThrottle(n, time.Hour)

	// Flapping stock: available, gone, available again inside the cooldown.
	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.OnStatusObserved(item("1"), plugin.StatusUnavailable, 0.9)
	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.Flush(context.Background())

	assert.Equal(t, 1, n.sent())
}

func TestThrottle_CooldownExpiryAllowsNewAlert(t *testing.T) {
	n := &recordingNotifier{}
	th := newTestThrottle(n, time.Millisecond)

	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.OnStatusObserved(item("1"), plugin.StatusUnavailable, 0.9)
	time.Sleep(10 * time.Millisecond)
	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.Flush(context.Background())

	assert.Equal(t, 1, n.sent())
	// Both transitions queued before the single flush.
	assert.Contains(t, n.subjects[0], "2 items")
}

func TestThrottle_BatchedSummary(t *testing.T) {
	n := &recordingNotifier{}
	th := newTestThrottle(n, time.Hour)

	for i := 1; i <= 7; i++ {
		th.OnStatusObserved(item(fmt.Sprintf("%d", i)), plugin.StatusAvailable, 0.9)
	}
	th.Flush(context.Background())

	require.Equal(t, 1, n.sent())
	assert.Equal(t, "Stock available: 7 items", n.subjects[0])
	assert.Contains(t, n.bodies[0], "https://shop.example.com/p/1")
	assert.Contains(t, n.bodies[0], "https://shop.example.com/p/5")
	assert.NotContains(t, n.bodies[0], "https://shop.example.com/p/6")
	assert.Contains(t, n.bodies[0], "...and 2 more")
}

func TestThrottle_FlushClearsQueueEvenOnDispatchFailure(t *testing.T) {
	n := &recordingNotifier{err: errors.New("webhook down")}
	th := newTestThrottle(n, time.Hour)

	th.OnStatusObserved(item("1"), plugin.StatusAvailable, 0.9)
	th.Flush(context.Background())
	th.Flush(context.Background())

	// The failed event is gone; the second flush has nothing to send.
	assert.Equal(t, 1, n.sent())
}

func TestThrottle_EmptyFlushSendsNothing(t *testing.T) {
	n := &recordingNotifier{}
	th := newTestThrottle(n, time.Hour)

	th.Flush(context.Background())

	assert.Zero(t, n.sent())
}
