package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

func TestConfidenceFactorWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, w := range confidenceFactorWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestConfidenceCalculatorAgreementBoost(t *testing.T) {
	calc := NewConfidenceCalculator()

	rule := &RuleBasedResult{
		Classification:  models.ClassificationDefacement,
		Confidence:      0.95,
		PrimaryCategory: models.ThreatDefacement,
		Indicators: []models.ThreatIndicator{
			{Category: models.ThreatDefacement, Confidence: 0.95},
		},
	}
	aiAgree := &ai.ClassificationResult{Label: models.ClassificationDefacement, Confidence: 0.9}
	aiDisagree := &ai.ClassificationResult{Label: models.ClassificationBenign, Confidence: 0.9}

	agreeScore, agreeFactors := calc.Calculate(aiAgree, nil, rule, nil)
	disagreeScore, disagreeFactors := calc.Calculate(aiDisagree, nil, rule, nil)

	assert.Equal(t, 1.0, agreeFactors["cross_validation"])
	assert.Equal(t, 0.5, disagreeFactors["cross_validation"])
	assert.Greater(t, agreeScore, disagreeScore)
}

func TestConfidenceCalculatorCategoryMultiplier(t *testing.T) {
	calc := NewConfidenceCalculator()

	mk := func(category models.ThreatCategory) *RuleBasedResult {
		return &RuleBasedResult{
			Classification:  models.ClassificationDefacement,
			Confidence:      0.9,
			PrimaryCategory: category,
			Indicators: []models.ThreatIndicator{
				{Category: category, Confidence: 0.9},
			},
		}
	}

	defacement, _ := calc.Calculate(nil, nil, mk(models.ThreatDefacement), nil)
	xss, _ := calc.Calculate(nil, nil, mk(models.ThreatXSS), nil)
	unknown, _ := calc.Calculate(nil, nil, mk(models.ThreatUnknown), nil)

	assert.Greater(t, defacement, xss)
	assert.Greater(t, xss, unknown)
}

func TestConfidenceCalculatorStrongFactorBoost(t *testing.T) {
	calc := NewConfidenceCalculator()

	rule := &RuleBasedResult{
		Classification:  models.ClassificationDefacement,
		Confidence:      0.95,
		PrimaryCategory: models.ThreatDefacement,
		Indicators: []models.ThreatIndicator{
			{Category: models.ThreatDefacement, Confidence: 0.95},
			{Category: models.ThreatXSS, Confidence: 0.85},
			{Category: models.ThreatBackdoor, Confidence: 0.9},
		},
	}
	semantic := &vectorizer.SemanticAnalysis{MainContentSimilarity: 0.1}
	behavioral := &BehavioralResult{Score: 0.85, RiskLevel: "critical"}
	aiResult := &ai.ClassificationResult{Label: models.ClassificationDefacement, Confidence: 0.92}

	score, factors := calc.Calculate(aiResult, semantic, rule, behavioral)

	strong := 0
	for _, v := range factors {
		if v > 0.7 {
			strong++
		}
	}
	assert.GreaterOrEqual(t, strong, 3)
	assert.Equal(t, 1.0, score)
}

func TestConfidenceCalculatorMissingSignals(t *testing.T) {
	calc := NewConfidenceCalculator()

	score, factors := calc.Calculate(nil, nil, nil, nil)

	// Only the historical baseline contributes, then the unknown-category
	// multiplier halves it.
	assert.InDelta(t, 0.7*0.10*0.50, score, 1e-9)
	assert.Equal(t, map[string]float64{"historical_accuracy": 0.7}, factors)
}

func TestSetHistoricalAccuracy(t *testing.T) {
	calc := NewConfidenceCalculator()
	calc.SetHistoricalAccuracy(0.9)
	assert.Equal(t, 0.9, calc.HistoricalAccuracy())

	calc.SetHistoricalAccuracy(1.5)
	assert.Equal(t, 1.0, calc.HistoricalAccuracy())
}
