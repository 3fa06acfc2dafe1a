package classifier

import (
	"sync"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

// Factor weights for fused confidence. They sum to 1.0.
var confidenceFactorWeights = map[string]float64{
	"rule_match_strength": 0.20,
	"pattern_coverage":    0.20,
	"semantic_drift":      0.15,
	"behavioral_anomaly":  0.15,
	"ai_certainty":        0.10,
	"historical_accuracy": 0.10,
	"cross_validation":    0.10,
}

// Category multipliers damp confidence for threat classes the pattern bank
// detects less reliably.
var categoryMultipliers = map[models.ThreatCategory]float64{
	models.ThreatDefacement:    1.00,
	models.ThreatBackdoor:      1.00,
	models.ThreatSQLInjection:  0.95,
	models.ThreatMalware:       0.95,
	models.ThreatCryptojacking: 0.90,
	models.ThreatPhishing:      0.90,
	models.ThreatXSS:           0.85,
	models.ThreatUnknown:       0.50,
}

// ConfidenceCalculator fuses sub-classifier outputs into one confidence
// score. The historical accuracy baseline moves with analyst feedback.
type ConfidenceCalculator struct {
	mu                 sync.RWMutex
	historicalAccuracy float64
}

// NewConfidenceCalculator starts with the documented 0.7 historical
// baseline.
func NewConfidenceCalculator() *ConfidenceCalculator {
	return &ConfidenceCalculator{historicalAccuracy: 0.7}
}

// SetHistoricalAccuracy updates the rolling accuracy baseline, clamped to
// [0,1].
func (c *ConfidenceCalculator) SetHistoricalAccuracy(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historicalAccuracy = clamp01(v)
}

// HistoricalAccuracy returns the current baseline.
func (c *ConfidenceCalculator) HistoricalAccuracy() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historicalAccuracy
}

// Calculate fuses the available sub-results. Missing sub-results contribute
// zero to their factors. Returns the fused score and the factor breakdown.
func (c *ConfidenceCalculator) Calculate(
	aiResult *ai.ClassificationResult,
	semantic *vectorizer.SemanticAnalysis,
	rule *RuleBasedResult,
	behavioral *BehavioralResult,
) (float64, map[string]float64) {
	factors := map[string]float64{}

	if rule != nil {
		factors["rule_match_strength"] = rule.Confidence

		categories := map[models.ThreatCategory]bool{}
		for _, ind := range rule.Indicators {
			categories[ind.Category] = true
		}
		coverage := float64(len(categories)) / 3
		if coverage > 1 {
			coverage = 1
		}
		factors["pattern_coverage"] = coverage
	}

	if semantic != nil {
		factors["semantic_drift"] = clamp01(1 - semantic.MainContentSimilarity)
	}

	if behavioral != nil {
		factors["behavioral_anomaly"] = behavioral.Score
	}

	if aiResult != nil {
		factors["ai_certainty"] = aiResult.Confidence
	}

	factors["historical_accuracy"] = c.HistoricalAccuracy()

	if aiResult != nil && rule != nil {
		if aiResult.Label == rule.Classification {
			factors["cross_validation"] = 1.0
		} else {
			factors["cross_validation"] = 0.5
		}
	}

	var score float64
	for name, value := range factors {
		score += confidenceFactorWeights[name] * value
	}

	category := models.ThreatUnknown
	if rule != nil {
		category = rule.PrimaryCategory
	}
	score *= categoryMultipliers[category]

	strong := 0
	for _, value := range factors {
		if value > 0.7 {
			strong++
		}
	}
	if strong >= 3 {
		score *= 1.2
	}

	return clamp01(score), factors
}
