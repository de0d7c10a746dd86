package analyzer

import (
	"fmt"
	"strings"

	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// MethodKeyword is the method name reported by the keyword classifier.
const MethodKeyword = "keyword_analysis"

// Reason codes emitted by Classify.
const (
	ReasonCriticalOut = "critical_out_of_stock"
	ReasonMixed       = "mixed_signals"
	ReasonModerateOut = "moderate_out_of_stock"
	ReasonClearIn     = "clear_in_stock"
	ReasonAmbiguous   = "ambiguous_keywords"
	ReasonNoKeywords  = "no_keywords"
)

// weightedPhrase is one keyword with its tier base weight.
type weightedPhrase struct {
	phrase string
	weight float64
}

// The four keyword tiers. Phrases are matched case-insensitively against the
// raw text; Chinese phrases cover the storefronts we monitor most.
var (
	criticalOutPhrases = []weightedPhrase{
		{"out of stock", 1.0},
		{"sold out", 1.0},
		{"currently unavailable", 0.95},
		{"no longer available", 0.95},
		{"temporarily out of stock", 0.9},
		{"缺货", 1.0},
		{"售罄", 1.0},
		{"无货", 0.95},
		{"断货", 0.95},
		{"已售完", 0.9},
	}

	moderateOutPhrases = []weightedPhrase{
		{"not available", 0.75},
		{"unavailable", 0.7},
		{"notify me when available", 0.75},
		{"back in stock soon", 0.7},
		{"coming soon", 0.6},
		{"暂时缺货", 0.75},
		{"补货中", 0.7},
		{"到货通知", 0.75},
		{"暂不发售", 0.6},
	}

	inStockPhrases = []weightedPhrase{
		{"in stock", 0.95},
		{"add to cart", 0.9},
		{"add to basket", 0.9},
		{"buy now", 0.9},
		{"available now", 0.85},
		{"ready to ship", 0.8},
		{"现货", 0.95},
		{"有货", 0.9},
		{"立即购买", 0.9},
		{"加入购物车", 0.9},
		{"现货发售", 0.85},
	}

	ambiguousPhrases = []weightedPhrase{
		{"only a few left", 0.5},
		{"limited stock", 0.4},
		{"low stock", 0.4},
		{"limited availability", 0.35},
		{"pre-order", 0.3},
		{"check availability", 0.3},
		{"库存紧张", 0.4},
		{"预售", 0.3},
		{"少量现货", 0.45},
	}
)

// Context words around a hit shift its weight: boost words suggest the phrase
// sits in product copy, penalty words suggest reviews or recommendations.
var (
	contextBoostWords = []string{
		"product", "item", "price", "cart", "order", "checkout", "shipping",
		"商品", "价格", "购买", "下单",
	}
	contextPenaltyWords = []string{
		"review", "comment", "related", "recommended", "similar", "you may also",
		"评论", "推荐", "相关",
	}
	headingMarkers = []string{
		"<h1", "<h2", "<h3", "<strong", "alert", "warning", "status",
	}
)

const (
	contextWindow   = 100
	headingLookback = 50
)

// KeywordClassifier scores raw text against the layered keyword tiers.
type KeywordClassifier struct {
	w config.Weights
}

// NewKeywordClassifier creates a classifier driven by the given weight table.
func NewKeywordClassifier(w config.Weights) *KeywordClassifier {
	return &KeywordClassifier{w: w}
}

// Classify scores text and returns the keyword signal. The decision ladder
// prefers explicit out-of-stock language, then clear in-stock language, and
// degrades to Unknown when the two sides contradict each other.
func (c *KeywordClassifier) Classify(text string) plugin.Signal {
	lower := strings.ToLower(text)

	criticalOut := c.tierScore(lower, criticalOutPhrases)
	moderateOut := c.tierScore(lower, moderateOutPhrases)
	inStock := c.tierScore(lower, inStockPhrases)
	ambiguous := c.tierScore(lower, ambiguousPhrases)

	totalOut := criticalOut + moderateOut
	evidence := fmt.Sprintf("critical_out=%.2f moderate_out=%.2f in_stock=%.2f ambiguous=%.2f",
		criticalOut, moderateOut, inStock, ambiguous)

	sig := plugin.Signal{Method: MethodKeyword, Evidence: evidence}

	switch {
	case criticalOut > c.w.CriticalGate && inStock <= c.w.MixedRatio*criticalOut:
		sig.Status = plugin.StatusUnavailable
		sig.Confidence = min(c.w.ConfidenceCap, criticalOut)
		sig.Reason = ReasonCriticalOut
	case criticalOut > c.w.CriticalGate:
		sig.Status = plugin.StatusUnknown
		sig.Confidence = 0.5
		sig.Reason = ReasonMixed
	case totalOut > c.w.ModerateGate && totalOut > inStock:
		sig.Status = plugin.StatusUnavailable
		sig.Confidence = min(0.8, totalOut/2)
		sig.Reason = ReasonModerateOut
	case inStock > c.w.InStockGate && totalOut < c.w.InStockDominance*inStock:
		sig.Status = plugin.StatusAvailable
		sig.Confidence = min(0.9, inStock)
		sig.Reason = ReasonClearIn
	case ambiguous > 0:
		sig.Status = plugin.StatusUnknown
		sig.Confidence = 0.3
		sig.Reason = ReasonAmbiguous
	default:
		sig.Status = plugin.StatusUnknown
		sig.Confidence = 0.0
		sig.Reason = ReasonNoKeywords
	}
	return sig
}

// tierScore sums the context-weighted hits of one tier over the text.
func (c *KeywordClassifier) tierScore(lower string, tier []weightedPhrase) float64 {
	var score float64
	for _, wp := range tier {
		idx := 0
		for {
			pos := strings.Index(lower[idx:], wp.phrase)
			if pos < 0 {
				break
			}
			pos += idx
			score += wp.weight * c.contextMultiplier(lower, pos, len(wp.phrase))
			idx = pos + len(wp.phrase)
		}
	}
	return score
}

// contextMultiplier inspects a ±100-char window around a hit plus the 50
// chars immediately before it for heading markers.
func (c *KeywordClassifier) contextMultiplier(lower string, pos, phraseLen int) float64 {
	start := pos - contextWindow
	if start < 0 {
		start = 0
	}
	end := pos + phraseLen + contextWindow
	if end > len(lower) {
		end = len(lower)
	}
	window := lower[start:end]

	mult := 1.0
	for _, w := range contextBoostWords {
		if strings.Contains(window, w) {
			mult *= c.w.ContextBoost
		}
	}
	for _, w := range contextPenaltyWords {
		if strings.Contains(window, w) {
			mult *= c.w.ContextPenalty
		}
	}

	hstart := pos - headingLookback
	if hstart < 0 {
		hstart = 0
	}
	preceding := lower[hstart:pos]
	for _, m := range headingMarkers {
		if strings.Contains(preceding, m) {
			mult *= c.w.HeadingProximity
			break
		}
	}

	if mult < c.w.MultiplierMin {
		mult = c.w.MultiplierMin
	}
	if mult > c.w.MultiplierMax {
		mult = c.w.MultiplierMax
	}
	return mult
}
