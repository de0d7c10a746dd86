package config

import "fmt"

// Weights is the tuned-heuristic table driving the classifiers, the element
// inspector, and the fusion engine. The defaults encode calibrated judgment,
// not provable constants; they are exposed here so they can be recalibrated
// without touching detection code.
type Weights struct {
	// Per-method fusion weights
	Inspector       float64 `koanf:"inspector"`
	Prober          float64 `koanf:"prober"`
	KeywordCritical float64 `koanf:"keyword_critical"`
	KeywordClear    float64 `koanf:"keyword_clear"`
	KeywordMixed    float64 `koanf:"keyword_mixed"`
	KeywordDefault  float64 `koanf:"keyword_default"`
	StructureMin    float64 `koanf:"structure_min"`
	StructureMax    float64 `koanf:"structure_max"`

	// Fusion decision
	ConsensusFloor     float64 `koanf:"consensus_floor"`
	ConfidenceCap      float64 `koanf:"confidence_cap"`
	VoteMargin         float64 `koanf:"vote_margin"`
	NegativeDOMBias    float64 `koanf:"negative_dom_bias"`
	NegativeDOMFloor   float64 `koanf:"negative_dom_floor"`
	CloseOutFactor     float64 `koanf:"close_out_factor"`
	CloseUnknownFactor float64 `koanf:"close_unknown_factor"`

	// Element inspector
	ExplicitTextFloor float64 `koanf:"explicit_text_floor"`
	AncestorBoost     float64 `koanf:"ancestor_boost"`
	QtyZeroConf       float64 `koanf:"qty_zero_conf"`
	QtyPositiveConf   float64 `koanf:"qty_positive_conf"`
	WaitlistConf      float64 `koanf:"waitlist_conf"`
	StrongBuyFloor    float64 `koanf:"strong_buy_floor"`
	StrongBuyConf     float64 `koanf:"strong_buy_conf"`
	MediumBuyFloor    float64 `koanf:"medium_buy_floor"`
	MediumBuyConf     float64 `koanf:"medium_buy_conf"`
	DisabledBuyConf   float64 `koanf:"disabled_buy_conf"`
	ProductNoBuyConf  float64 `koanf:"product_no_buy_conf"`

	// Keyword classifier
	ContextBoost     float64 `koanf:"context_boost"`
	ContextPenalty   float64 `koanf:"context_penalty"`
	HeadingProximity float64 `koanf:"heading_proximity"`
	MultiplierMin    float64 `koanf:"multiplier_min"`
	MultiplierMax    float64 `koanf:"multiplier_max"`
	CriticalGate     float64 `koanf:"critical_gate"`
	MixedRatio       float64 `koanf:"mixed_ratio"`
	ModerateGate     float64 `koanf:"moderate_gate"`
	InStockGate      float64 `koanf:"in_stock_gate"`
	InStockDominance float64 `koanf:"in_stock_dominance"`
}

// DefaultWeights returns the calibrated defaults.
func DefaultWeights() Weights {
	return Weights{
		Inspector:       0.9,
		Prober:          0.85,
		KeywordCritical: 0.8,
		KeywordClear:    0.7,
		KeywordMixed:    0.4,
		KeywordDefault:  0.6,
		StructureMin:    0.5,
		StructureMax:    0.7,

		ConsensusFloor:     0.8,
		ConfidenceCap:      0.95,
		VoteMargin:         0.2,
		NegativeDOMBias:    1.5,
		NegativeDOMFloor:   0.8,
		CloseOutFactor:     0.7,
		CloseUnknownFactor: 0.5,

		ExplicitTextFloor: 0.9,
		AncestorBoost:     1.2,
		QtyZeroConf:       0.95,
		QtyPositiveConf:   0.9,
		WaitlistConf:      0.8,
		StrongBuyFloor:    0.8,
		StrongBuyConf:     0.85,
		MediumBuyFloor:    0.5,
		MediumBuyConf:     0.75,
		DisabledBuyConf:   0.7,
		ProductNoBuyConf:  0.6,

		ContextBoost:     1.2,
		ContextPenalty:   0.7,
		HeadingProximity: 1.3,
		MultiplierMin:    0.3,
		MultiplierMax:    2.0,
		CriticalGate:     0.8,
		MixedRatio:       1.5,
		ModerateGate:     0.5,
		InStockGate:      0.8,
		InStockDominance: 0.5,
	}
}

// Validate checks the table for values the algorithms cannot work with.
func (w Weights) Validate() error {
	unit := map[string]float64{
		"inspector":          w.Inspector,
		"prober":             w.Prober,
		"keyword_critical":   w.KeywordCritical,
		"keyword_clear":      w.KeywordClear,
		"keyword_mixed":      w.KeywordMixed,
		"keyword_default":    w.KeywordDefault,
		"structure_min":      w.StructureMin,
		"structure_max":      w.StructureMax,
		"consensus_floor":    w.ConsensusFloor,
		"confidence_cap":     w.ConfidenceCap,
		"negative_dom_floor": w.NegativeDOMFloor,
		"qty_zero_conf":      w.QtyZeroConf,
		"qty_positive_conf":  w.QtyPositiveConf,
		"waitlist_conf":      w.WaitlistConf,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("weights.%s must be in [0,1], got %g", name, v)
		}
	}
	if w.StructureMin > w.StructureMax {
		return fmt.Errorf("weights.structure_min %g exceeds structure_max %g", w.StructureMin, w.StructureMax)
	}
	if w.MultiplierMin <= 0 || w.MultiplierMin > w.MultiplierMax {
		return fmt.Errorf("weights multiplier clamp [%g,%g] is invalid", w.MultiplierMin, w.MultiplierMax)
	}
	if w.NegativeDOMBias < 1 {
		return fmt.Errorf("weights.negative_dom_bias must be at least 1, got %g", w.NegativeDOMBias)
	}
	return nil
}
