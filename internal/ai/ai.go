// Package ai provides the LLM-backed classification collaborator.
package ai

import (
	"context"
	"time"

	"github.com/defacewatch/defacewatch/internal/models"
)

// PromptType selects the analysis template sent to the model.
type PromptType string

const (
	PromptGeneralAnalysis  PromptType = "general_analysis"
	PromptContentInjection PromptType = "content_injection"
	PromptVisualDefacement PromptType = "visual_defacement"
)

// AnalysisRequest is one change set submitted for model analysis.
type AnalysisRequest struct {
	ChangedContent []string
	StaticContext  []string
	SiteURL        string
	SiteContext    map[string]interface{}
	PromptType     PromptType
	Prior          *ClassificationResult
}

// ClassificationResult is the model's verdict on a change set.
type ClassificationResult struct {
	Label             models.Classification `json:"label"`
	Confidence        float64               `json:"confidence"`
	Reasoning         string                `json:"reasoning"`
	RiskIndicators    []string              `json:"riskIndicators,omitempty"`
	BenignIndicators  []string              `json:"benignIndicators,omitempty"`
	RecommendedAction string                `json:"recommendedAction"` // monitor, alert, investigate, ignore
	Severity          string                `json:"severity"`          // low, medium, high, critical
	PromptType        PromptType            `json:"promptType"`
	Model             string                `json:"model,omitempty"`
	TokensUsed        int                   `json:"tokensUsed,omitempty"`
	Timestamp         time.Time             `json:"timestamp"`
}

// Classifier analyzes content changes with a language model.
type Classifier interface {
	Classify(ctx context.Context, req AnalysisRequest) (*ClassificationResult, error)
}

// Embedder produces embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SelectPrompt picks the analysis template from the request shape. Script
// and iframe fragments get the injection prompt, wholesale visual changes
// the defacement prompt, everything else the general one.
func SelectPrompt(req AnalysisRequest) PromptType {
	for _, block := range req.ChangedContent {
		if containsAnyFold(block, "<script", "<iframe", "javascript:") {
			return PromptContentInjection
		}
	}
	if v, ok := req.SiteContext["visual_change"].(bool); ok && v {
		return PromptVisualDefacement
	}
	return PromptGeneralAnalysis
}
