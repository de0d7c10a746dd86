// Package fusion combines the weak per-method signals into one verdict with
// a calibrated confidence.
package fusion

import (
	"math"
	"time"

	"github.com/ramkansal/stockwatch/internal/analyzer"
	"github.com/ramkansal/stockwatch/internal/config"
	"github.com/ramkansal/stockwatch/internal/inspector"
	"github.com/ramkansal/stockwatch/internal/prober"
	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// Reason codes on fused results.
const (
	ReasonConsensus = "high_confidence_consensus"
	ReasonVote      = "weighted_vote"
	ReasonCloseOut  = "close_call_out_bias"
	ReasonTooClose  = "scores_too_close"
	ReasonNoMethods = "no_detection_methods_succeeded"
)

// Engine fuses signals according to the configured weight table.
type Engine struct {
	w config.Weights
}

// New creates a fusion engine.
func New(w config.Weights) *Engine {
	return &Engine{w: w}
}

// Fuse combines all available signals into a CheckResult. Methods that
// failed or timed out are simply absent from the input; an Unknown signal
// never adds vote weight, it can only break a high-confidence consensus.
func (e *Engine) Fuse(signals []plugin.Signal) plugin.CheckResult {
	now := time.Now()

	// Step 1: per-method weighting.
	weighted := make([]plugin.Signal, len(signals))
	for i, sig := range signals {
		sig.Weight = e.methodWeight(sig)
		weighted[i] = sig
	}

	// Step 2: consensus shortcut among high-confidence signals.
	if status, conf, ok := e.consensus(weighted); ok {
		return plugin.CheckResult{
			Status:     status,
			Confidence: conf,
			Signals:    weighted,
			Reason:     ReasonConsensus,
			CheckedAt:  now,
		}
	}

	// Step 3: weighted vote.
	var inScore, outScore, totalWeight float64
	for _, sig := range weighted {
		switch sig.Status {
		case plugin.StatusAvailable:
			inScore += sig.Weight * sig.Confidence
			totalWeight += sig.Weight
		case plugin.StatusUnavailable:
			outScore += sig.Weight * sig.Confidence
			totalWeight += sig.Weight
		}
	}

	if totalWeight == 0 {
		return plugin.CheckResult{
			Status:     plugin.StatusUnknown,
			Confidence: 0.0,
			Signals:    weighted,
			Reason:     ReasonNoMethods,
			CheckedAt:  now,
		}
	}

	// Explicit negative DOM evidence is trusted more than the aggregate
	// score alone would indicate.
	for _, sig := range weighted {
		if sig.Method == inspector.MethodInspector &&
			sig.Status == plugin.StatusUnavailable &&
			sig.Confidence >= e.w.NegativeDOMFloor &&
			outScore < inScore {
			outScore *= e.w.NegativeDOMBias
			break
		}
	}

	// Step 4: thresholded decision.
	confidence := math.Min(e.w.ConfidenceCap, math.Abs(inScore-outScore)/totalWeight)
	margin := e.w.VoteMargin * totalWeight

	result := plugin.CheckResult{Signals: weighted, CheckedAt: now}
	switch {
	case outScore > inScore+margin:
		result.Status = plugin.StatusUnavailable
		result.Confidence = confidence
		result.Reason = ReasonVote
	case inScore > outScore+margin:
		result.Status = plugin.StatusAvailable
		result.Confidence = confidence
		result.Reason = ReasonVote
	case outScore > inScore:
		result.Status = plugin.StatusUnavailable
		result.Confidence = confidence * e.w.CloseOutFactor
		result.Reason = ReasonCloseOut
	default:
		result.Status = plugin.StatusUnknown
		result.Confidence = confidence * e.w.CloseUnknownFactor
		result.Reason = ReasonTooClose
	}
	result.Confidence = clamp01(result.Confidence)
	return result
}

// methodWeight assigns the per-method fusion weight. The keyword
// classifier's weight depends on its own reason code; the structure
// analyzer's on the page type it saw.
func (e *Engine) methodWeight(sig plugin.Signal) float64 {
	switch sig.Method {
	case inspector.MethodInspector:
		return e.w.Inspector
	case prober.MethodProber:
		return e.w.Prober
	case analyzer.MethodKeyword:
		switch sig.Reason {
		case analyzer.ReasonCriticalOut:
			return e.w.KeywordCritical
		case analyzer.ReasonClearIn:
			return e.w.KeywordClear
		case analyzer.ReasonAmbiguous, analyzer.ReasonMixed:
			return e.w.KeywordMixed
		default:
			return e.w.KeywordDefault
		}
	case analyzer.MethodStructure:
		switch sig.Reason {
		case string(analyzer.PageOutOfStockNotification):
			return e.w.StructureMax
		case string(analyzer.PageActiveProduct), string(analyzer.PageProductNoBuy):
			return (e.w.StructureMin + e.w.StructureMax) / 2
		default:
			return e.w.StructureMin
		}
	default:
		return e.w.KeywordDefault
	}
}

// consensus returns the agreed status when at least one signal reaches the
// consensus floor and every such signal agrees. An Unknown signal at the
// floor breaks consensus without casting a vote.
func (e *Engine) consensus(signals []plugin.Signal) (plugin.Status, float64, bool) {
	var high []plugin.Signal
	for _, sig := range signals {
		if sig.Confidence >= e.w.ConsensusFloor {
			high = append(high, sig)
		}
	}
	if len(high) == 0 {
		return plugin.StatusUnknown, 0, false
	}

	status := high[0].Status
	for _, sig := range high[1:] {
		if sig.Status != status {
			return plugin.StatusUnknown, 0, false
		}
	}
	if status == plugin.StatusUnknown {
		return plugin.StatusUnknown, 0, false
	}

	var num, denom float64
	for _, sig := range high {
		num += sig.Weight * sig.Confidence
		denom += sig.Weight
	}
	conf := math.Min(e.w.ConfidenceCap, num/denom)
	return status, conf, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
