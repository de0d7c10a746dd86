package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

func TestResultCache_HitWithinTTL(t *testing.T) {
	c := newResultCache(time.Minute)
	result := plugin.CheckResult{Status: plugin.StatusAvailable, Confidence: 0.9}

	c.Put("https://shop.example.com/p/1", result)
	got, ok := c.Get("https://shop.example.com/p/1")

	assert.True(t, ok)
	assert.Equal(t, result.Status, got.Status)
}

func TestResultCache_Miss(t *testing.T) {
	c := newResultCache(time.Minute)

	_, ok := c.Get("https://shop.example.com/p/unseen")

	assert.False(t, ok)
}

func TestResultCache_Expiry(t *testing.T) {
	c := newResultCache(5 * time.Millisecond)
	c.Put("https://shop.example.com/p/1", plugin.CheckResult{Status: plugin.StatusAvailable})

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("https://shop.example.com/p/1")

	assert.False(t, ok)
}

func TestResultCache_ZeroTTLDisablesCaching(t *testing.T) {
	c := newResultCache(0)
	c.Put("https://shop.example.com/p/1", plugin.CheckResult{Status: plugin.StatusAvailable})

	_, ok := c.Get("https://shop.example.com/p/1")

	assert.False(t, ok)
}
