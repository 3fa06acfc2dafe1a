// Package classifier implements the multi-stage defacement classification
// pipeline: rule engine, behavioral analyzer, confidence fusion and the
// weighted-vote pipeline that combines them with the AI and semantic
// collaborators.
package classifier

import (
	"time"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

// RuleBasedResult is the rule engine's verdict over a content set.
type RuleBasedResult struct {
	Classification  models.Classification    `json:"classification"`
	Confidence      float64                  `json:"confidence"`
	TriggeredRules  []string                 `json:"triggeredRules"`
	RuleScores      map[string]float64       `json:"ruleScores"`
	Indicators      []models.ThreatIndicator `json:"indicators"`
	PrimaryCategory models.ThreatCategory    `json:"primaryCategory"`
	Reasoning       string                   `json:"reasoning"`
}

// StructureSummary describes the shape of a captured page for behavioral
// comparison.
type StructureSummary struct {
	ElementCount      int     `json:"elementCount"`
	ContentSimilarity float64 `json:"contentSimilarity"`
	UpdateFrequency   float64 `json:"updateFrequency"`   // changes per check over the baseline window
	ResponseTimeMs    int64   `json:"responseTimeMs"`
}

// BehavioralResult is the behavioral analyzer's anomaly report.
type BehavioralResult struct {
	Anomalies map[string]bool `json:"anomalies"`
	Score     float64         `json:"behavioralScore"`
	RiskLevel string          `json:"riskLevel"` // minimal, low, medium, high, critical
}

// ClassificationRequest carries everything the pipeline needs for one run.
type ClassificationRequest struct {
	ChangedContent    []string
	StaticContext     []string
	SiteURL           string
	SiteContext       map[string]interface{}
	Prior             *ai.ClassificationResult
	CurrentContent    *vectorizer.ContentSet
	BaselineContent   *vectorizer.ContentSet
	CurrentStructure  StructureSummary
	BaselineStructure *StructureSummary
	ExternalResources []string
}

// ConsensusMetrics captures how the sub-classifiers related to each other.
type ConsensusMetrics struct {
	AvailableClassifiers []string           `json:"availableClassifiers"`
	FactorBreakdown      map[string]float64 `json:"factorBreakdown"`
	AgreementAIRule      bool               `json:"agreementAiRule"`
}

// PipelineResult is the fused outcome of a full pipeline run.
type PipelineResult struct {
	FinalClassification models.Classification    `json:"finalClassification"`
	ConfidenceScore     float64                  `json:"confidenceScore"`
	ConfidenceLevel     models.ConfidenceLevel   `json:"confidenceLevel"`
	ThreatCategory      models.ThreatCategory    `json:"threatCategory"`
	Indicators          []models.ThreatIndicator `json:"indicators"`
	Reasoning           string                   `json:"reasoning"`

	AIResult         *ai.ClassificationResult     `json:"aiResult,omitempty"`
	SemanticAnalysis *vectorizer.SemanticAnalysis `json:"semanticAnalysis,omitempty"`
	RuleBasedResult  *RuleBasedResult             `json:"ruleBasedResult,omitempty"`
	BehavioralResult *BehavioralResult            `json:"behavioralResult,omitempty"`

	ClassifierWeights  map[string]float64 `json:"classifierWeights"`
	Consensus          ConsensusMetrics   `json:"consensus"`
	RecommendedActions []string           `json:"recommendedActions"`
	SeverityScore      float64            `json:"severityScore"`
	ProcessingTime     time.Duration      `json:"processingTime"`
	Timestamp          time.Time          `json:"timestamp"`
}
