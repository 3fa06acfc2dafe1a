// Package alerting turns classification results into alerts: gating,
// severity escalation, suppression and action recommendations.
package alerting

import (
	"time"

	"github.com/defacewatch/defacewatch/internal/models"
)

// AlertType categorizes what an alert is about.
type AlertType string

const (
	AlertDefacementDetected        AlertType = "DEFACEMENT_DETECTED"
	AlertSuspiciousActivity        AlertType = "SUSPICIOUS_ACTIVITY"
	AlertContentAnomaly            AlertType = "CONTENT_ANOMALY"
	AlertClassificationUncertainty AlertType = "CLASSIFICATION_UNCERTAINTY"
	AlertSiteDown                  AlertType = "SITE_DOWN"
	AlertSystemError               AlertType = "SYSTEM_ERROR"
	AlertBenignChange              AlertType = "BENIGN_CHANGE"
)

// Severity ranks alert urgency.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Ordinal maps a severity onto the 1..4 escalation axis.
func (s Severity) Ordinal() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// severityFromScore maps an escalated score back onto a severity.
func severityFromScore(score float64) Severity {
	switch {
	case score >= 3.5:
		return SeverityCritical
	case score >= 2.5:
		return SeverityHigh
	case score >= 1.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ChangeDetails summarizes what the change detector observed.
type ChangeDetails struct {
	ChangeCount        int      `json:"changeCount"`
	ChangedSections    []string `json:"changedSections,omitempty"`
	RapidChanges       bool     `json:"rapidChanges"`
	NewExternalLinks   int      `json:"newExternalLinks"`
	ContentReplacement bool     `json:"contentReplacement"`
	Summary            string   `json:"summary,omitempty"`
}

// VisualChanges summarizes rendered-page differences.
type VisualChanges struct {
	HasSignificantChange bool    `json:"hasSignificantChange"`
	DiffRatio            float64 `json:"diffRatio"`
}

// HistoricalContext carries what past snapshots say about this site.
type HistoricalContext struct {
	IsAnomalous            bool    `json:"isAnomalous"`
	PreviousClassification string  `json:"previousClassification,omitempty"`
	SimilarityToBaseline   float64 `json:"similarityToBaseline"`
}

// AlertContext is everything surrounding the classification that feeds
// gating and escalation.
type AlertContext struct {
	WebsiteID   string            `json:"websiteId"`
	WebsiteName string            `json:"websiteName"`
	WebsiteURL  string            `json:"websiteUrl"`
	SnapshotID  string            `json:"snapshotId,omitempty"`
	Changes     ChangeDetails     `json:"changes"`
	Visual      VisualChanges     `json:"visual"`
	Historical  HistoricalContext `json:"historical"`
}

// Alert is a triggered, non-suppressed finding ready for routing.
type Alert struct {
	ID                  string                `json:"id"`
	Type                AlertType             `json:"type"`
	Severity            Severity              `json:"severity"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	Context             AlertContext          `json:"context"`
	ClassificationLabel models.Classification `json:"classificationLabel"`
	ConfidenceScore     float64               `json:"confidenceScore"`
	SimilarityScore     *float64              `json:"similarityScore,omitempty"`
	RecommendedActions  []string              `json:"recommendedActions"`
	EscalationLevel     int                   `json:"escalationLevel"`
	SuppressionKey      string                `json:"suppressionKey"`
	CreatedAt           time.Time             `json:"createdAt"`
}
