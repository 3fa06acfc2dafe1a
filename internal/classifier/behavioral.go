package classifier

import "strings"

// Anomaly weights are fixed by the detection model.
var anomalyWeights = map[string]float64{
	"sudden_content_replacement":  0.80,
	"mass_element_deletion":       0.70,
	"suspicious_script_injection": 0.85,
	"unusual_external_resources":  0.60,
	"abnormal_update_frequency":   0.50,
	"performance_degradation":     0.40,
}

// suspiciousHosts flags external resources on throwaway TLDs and URL
// shorteners commonly used to stage payloads.
var suspiciousHosts = []string{".tk", ".ml", ".ga", ".cf", "bit.ly", "tinyurl.com"}

// BehavioralAnalyzer scores structural anomalies between a capture and its
// baseline.
type BehavioralAnalyzer struct{}

// NewBehavioralAnalyzer returns a behavioral analyzer.
func NewBehavioralAnalyzer() *BehavioralAnalyzer {
	return &BehavioralAnalyzer{}
}

// Analyze detects anomalies and folds them into a weighted score. A missing
// baseline limits detection to the current capture's own signals.
func (a *BehavioralAnalyzer) Analyze(current StructureSummary, baseline *StructureSummary, changedContent []string, externalResources []string) *BehavioralResult {
	anomalies := map[string]bool{}

	anomalies["sudden_content_replacement"] = current.ContentSimilarity < 0.3

	if baseline != nil && baseline.ElementCount > 0 {
		deleted := 1 - float64(current.ElementCount)/float64(baseline.ElementCount)
		anomalies["mass_element_deletion"] = deleted > 0.5
	} else {
		anomalies["mass_element_deletion"] = false
	}

	anomalies["suspicious_script_injection"] = hasScriptInjection(changedContent)

	suspicious := 0
	for _, url := range externalResources {
		lower := strings.ToLower(url)
		for _, host := range suspiciousHosts {
			if strings.Contains(lower, host) {
				suspicious++
				break
			}
		}
	}
	anomalies["unusual_external_resources"] = suspicious > 2

	if baseline != nil {
		anomalies["abnormal_update_frequency"] = baseline.UpdateFrequency > 0 &&
			current.UpdateFrequency > baseline.UpdateFrequency*3
		anomalies["performance_degradation"] = baseline.ResponseTimeMs > 0 &&
			current.ResponseTimeMs > baseline.ResponseTimeMs*3
	} else {
		anomalies["abnormal_update_frequency"] = false
		anomalies["performance_degradation"] = false
	}

	var score float64
	for name, present := range anomalies {
		if present {
			score += anomalyWeights[name]
		}
	}
	score = clamp01(score)

	return &BehavioralResult{
		Anomalies: anomalies,
		Score:     score,
		RiskLevel: behavioralRiskLevel(score),
	}
}

func hasScriptInjection(changedContent []string) bool {
	for _, block := range changedContent {
		lower := strings.ToLower(block)
		if strings.Contains(lower, "<script") ||
			strings.Contains(lower, "javascript:") ||
			strings.Contains(lower, "eval(") {
			return true
		}
	}
	return false
}

func behavioralRiskLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "critical"
	case score >= 0.6:
		return "high"
	case score >= 0.4:
		return "medium"
	case score >= 0.2:
		return "low"
	default:
		return "minimal"
	}
}
