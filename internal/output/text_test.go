package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

func TestTextWriter_Report(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	w := NewTextWriter(path)

	require.NoError(t, w.WriteCheck(CheckLine{
		URL:        "https://shop.example.com/p/1",
		Status:     plugin.StatusUnavailable,
		Confidence: 0.92,
		Reason:     "high_confidence_consensus",
		Signals: []plugin.Signal{
			{Method: "keyword_analysis", Status: plugin.StatusUnavailable, Confidence: 0.95, Weight: 0.8},
		},
		ResponseTime: 300 * time.Millisecond,
	}))
	require.NoError(t, w.WriteCheck(CheckLine{
		URL:        "https://shop.example.com/p/2",
		Status:     plugin.StatusAvailable,
		Confidence: 0.85,
		Reason:     "weighted_vote",
		Cached:     true,
	}))
	require.NoError(t, w.Finalize())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(content)

	assert.Contains(t, report, "[unavailable] https://shop.example.com/p/1")
	assert.Contains(t, report, "keyword_analysis")
	assert.Contains(t, report, "(cached)")
	assert.Contains(t, report, "Checks: 2")
	assert.Contains(t, report, "available:1")
	assert.Contains(t, report, "unavailable:1")
}
