package models

import "time"

// FeedbackType categorizes what an analyst is telling the system.
type FeedbackType string

const (
	FeedbackClassificationCorrection FeedbackType = "classification_correction"
	FeedbackConfidenceAdjustment     FeedbackType = "confidence_adjustment"
	FeedbackFalsePositive            FeedbackType = "false_positive"
	FeedbackFalseNegative            FeedbackType = "false_negative"
	FeedbackAlertFeedback            FeedbackType = "alert_feedback"
	FeedbackManualReview             FeedbackType = "manual_review"
)

// FeedbackSource identifies where feedback originated.
type FeedbackSource string

const (
	SourceHumanAnalyst        FeedbackSource = "human_analyst"
	SourceAutomatedValidation FeedbackSource = "automated_validation"
	SourceChatInteraction     FeedbackSource = "chat_interaction"
	SourceExternalSystem      FeedbackSource = "external_system"
	SourceSelfCorrection      FeedbackSource = "self_correction"
)

// Feedback is one analyst or system judgment about a past classification.
type Feedback struct {
	ID                  string                 `json:"id"`
	WebsiteID           string                 `json:"websiteId"`
	SnapshotID          string                 `json:"snapshotId,omitempty"`
	AlertID             string                 `json:"alertId,omitempty"`
	OriginalLabel       Classification         `json:"originalLabel"`
	OriginalConfidence  float64                `json:"originalConfidence"`
	Type                FeedbackType           `json:"type"`
	Source              FeedbackSource         `json:"source"`
	CorrectedLabel      Classification         `json:"correctedLabel,omitempty"`
	CorrectedConfidence *float64               `json:"correctedConfidence,omitempty"`
	Reasoning           string                 `json:"reasoning,omitempty"`
	AnalystID           string                 `json:"analystId,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
	ProcessedAt         *time.Time             `json:"processedAt,omitempty"`
}
