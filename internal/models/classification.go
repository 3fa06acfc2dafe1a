package models

// Classification is the label assigned to a content change.
type Classification string

const (
	ClassificationBenign     Classification = "benign"
	ClassificationDefacement Classification = "defacement"
	ClassificationUnclear    Classification = "unclear"
)

// ConfidenceLevel is a named band over the confidence score.
type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceCritical ConfidenceLevel = "critical"
)

// ConfidenceLevelFromScore maps a confidence score onto its band.
func ConfidenceLevelFromScore(score float64) ConfidenceLevel {
	switch {
	case score < 0.2:
		return ConfidenceVeryLow
	case score < 0.4:
		return ConfidenceLow
	case score < 0.6:
		return ConfidenceMedium
	case score < 0.8:
		return ConfidenceHigh
	case score < 0.95:
		return ConfidenceVeryHigh
	default:
		return ConfidenceCritical
	}
}

// ThreatCategory identifies the attack class behind a detection.
type ThreatCategory string

const (
	ThreatDefacement    ThreatCategory = "defacement"
	ThreatCryptojacking ThreatCategory = "cryptojacking"
	ThreatSQLInjection  ThreatCategory = "sql_injection"
	ThreatXSS           ThreatCategory = "xss"
	ThreatBackdoor      ThreatCategory = "backdoor"
	ThreatPhishing      ThreatCategory = "phishing"
	ThreatMalware       ThreatCategory = "malware"
	ThreatUnknown       ThreatCategory = "unknown"
)

// ThreatIndicator is one pattern match found in page content.
type ThreatIndicator struct {
	Pattern     string         `json:"pattern"`
	Category    ThreatCategory `json:"category"`
	Confidence  float64        `json:"confidence"`
	MatchedText string         `json:"matchedText"`
	Context     string         `json:"context"`
}
