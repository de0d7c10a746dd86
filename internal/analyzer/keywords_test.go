package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

func newTestClassifier() *KeywordClassifier {
	return NewKeywordClassifier(config.DefaultWeights())
}

func TestClassify_CriticalOutOfStock(t *testing.T) {
	c := newTestClassifier()

	// "sold out" inside an h1 gets the heading-proximity boost, putting the
	// critical tier well past its gate with nothing on the in-stock side.
	html := `<html><body><h1>Sold Out</h1><p>Check back later.</p></body></html>`
	sig := c.Classify(html)

	assert.Equal(t, MethodKeyword, sig.Method)
	assert.Equal(t, plugin.StatusUnavailable, sig.Status)
	assert.Equal(t, ReasonCriticalOut, sig.Reason)
	assert.InDelta(t, 0.95, sig.Confidence, 0.001)
}

func TestClassify_ClearInStock(t *testing.T) {
	c := newTestClassifier()

	html := `<html><body><p>In stock. Add to cart today.</p></body></html>`
	sig := c.Classify(html)

	assert.Equal(t, plugin.StatusAvailable, sig.Status)
	assert.Equal(t, ReasonClearIn, sig.Reason)
	assert.InDelta(t, 0.9, sig.Confidence, 0.001)
}

func TestClassify_MixedSignals(t *testing.T) {
	c := newTestClassifier()

	// Critical out-of-stock language drowned in in-stock language, as on a
	// listing page showing one sold-out variant among several purchasable ones.
	html := `<body><p>Red variant sold out.</p>` +
		`<p>In stock.</p><p>Add to cart.</p><p>Buy now.</p></body>`
	sig := c.Classify(html)

	assert.Equal(t, plugin.StatusUnknown, sig.Status)
	assert.Equal(t, ReasonMixed, sig.Reason)
	assert.InDelta(t, 0.5, sig.Confidence, 0.001)
}

func TestClassify_ModerateOutOfStock(t *testing.T) {
	c := newTestClassifier()

	html := `<body><p>Notify me when available</p></body>`
	sig := c.Classify(html)

	assert.Equal(t, plugin.StatusUnavailable, sig.Status)
	assert.Equal(t, ReasonModerateOut, sig.Reason)
	assert.Greater(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 0.8)
}

func TestClassify_AmbiguousOnly(t *testing.T) {
	c := newTestClassifier()

	sig := c.Classify(`<body><p>Pre-order opens next month.</p></body>`)

	assert.Equal(t, plugin.StatusUnknown, sig.Status)
	assert.Equal(t, ReasonAmbiguous, sig.Reason)
	assert.InDelta(t, 0.3, sig.Confidence, 0.001)
}

func TestClassify_NoKeywords(t *testing.T) {
	c := newTestClassifier()

	sig := c.Classify(`<body><p>Welcome to our homepage.</p></body>`)

	assert.Equal(t, plugin.StatusUnknown, sig.Status)
	assert.Equal(t, ReasonNoKeywords, sig.Reason)
	assert.Zero(t, sig.Confidence)
}

func TestClassify_ChinesePhrases(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		name   string
		html   string
		status plugin.Status
	}{
		{"sold out zh", "<body><h1>售罄</h1></body>", plugin.StatusUnavailable},
		{"in stock zh", "<body><p>现货 立即购买</p></body>", plugin.StatusAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := c.Classify(tt.html)
			assert.Equal(t, tt.status, sig.Status)
		})
	}
}

func TestContextMultiplier_PenaltyInReviewSection(t *testing.T) {
	c := newTestClassifier()

	// The same phrase scores lower inside review copy than in product copy.
	review := c.tierScore(`customer review section: this sold out fast`, criticalOutPhrases)
	product := c.tierScore(`product page: this item is sold out`, criticalOutPhrases)

	assert.Less(t, review, product)
}

func TestContextMultiplier_Clamped(t *testing.T) {
	c := newTestClassifier()
	w := config.DefaultWeights()

	// Stack every boost word in one window; the multiplier must not exceed
	// the configured ceiling.
	text := `product item price cart order checkout shipping sold out`
	score := c.tierScore(text, criticalOutPhrases)

	assert.LessOrEqual(t, score, 1.0*w.MultiplierMax)
	assert.GreaterOrEqual(t, score, 1.0*w.MultiplierMin)
}
