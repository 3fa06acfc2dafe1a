package vectorizer

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SemanticAnalysis is the drift report produced by comparing a snapshot's
// content against its baseline.
type SemanticAnalysis struct {
	SimilarityScores      map[string]float64 `json:"similarityScores"`
	MainContentSimilarity float64            `json:"mainContentSimilarity"`
	Drift                 float64            `json:"drift"`
	SuspiciousChanges     []string           `json:"suspiciousChanges,omitempty"`
	RiskLevel             string             `json:"riskLevel"` // minimal, low, medium, high, critical
	Timestamp             time.Time          `json:"timestamp"`
}

// ContentSet holds the per-type text extracted from one capture.
type ContentSet struct {
	MainContent     string
	Title           string
	TextBlocks      []string
	MetaDescription string
}

// SemanticAnalyzer measures semantic drift between a current capture and
// its baseline.
type SemanticAnalyzer struct {
	vectorizer Vectorizer
}

// NewSemanticAnalyzer builds an analyzer over the given vectorizer.
func NewSemanticAnalyzer(v Vectorizer) *SemanticAnalyzer {
	return &SemanticAnalyzer{vectorizer: v}
}

// Analyze embeds both content sets per type, compares them, and derives a
// risk level. A missing baseline yields a minimal-risk report.
func (a *SemanticAnalyzer) Analyze(ctx context.Context, current, baseline *ContentSet) (*SemanticAnalysis, error) {
	analysis := &SemanticAnalysis{
		SimilarityScores:      map[string]float64{},
		MainContentSimilarity: 1.0,
		RiskLevel:             "minimal",
		Timestamp:             time.Now(),
	}
	if baseline == nil {
		return analysis, nil
	}

	pairs := []struct {
		contentType string
		cur, base   string
	}{
		{ContentTypeMain, current.MainContent, baseline.MainContent},
		{ContentTypeTitle, current.Title, baseline.Title},
		{ContentTypeBlocks, strings.Join(current.TextBlocks, " "), strings.Join(baseline.TextBlocks, " ")},
		{ContentTypeMeta, current.MetaDescription, baseline.MetaDescription},
	}

	for _, p := range pairs {
		if p.cur == "" && p.base == "" {
			continue
		}
		curVec, err := a.vectorizer.Embed(ctx, p.cur, p.contentType, nil)
		if err != nil {
			return nil, err
		}
		baseVec, err := a.vectorizer.Embed(ctx, p.base, p.contentType, nil)
		if err != nil {
			return nil, err
		}
		score := a.vectorizer.Similarity(curVec.Vector, baseVec.Vector, "cosine")
		analysis.SimilarityScores[p.contentType] = score

		if score < 0.5 {
			analysis.SuspiciousChanges = append(analysis.SuspiciousChanges,
				p.contentType+" diverged from baseline")
		}
	}

	if score, ok := analysis.SimilarityScores[ContentTypeMain]; ok {
		analysis.MainContentSimilarity = score
	}
	analysis.Drift = 1 - analysis.MainContentSimilarity
	analysis.RiskLevel = riskLevel(analysis.Drift, len(analysis.SuspiciousChanges))

	log.Debug().
		Float64("drift", analysis.Drift).
		Str("riskLevel", analysis.RiskLevel).
		Int("suspiciousChanges", len(analysis.SuspiciousChanges)).
		Msg("Semantic analysis complete")
	return analysis, nil
}

// riskLevel bands semantic drift, promoted one band when several content
// types diverged at once.
func riskLevel(drift float64, suspicious int) string {
	levels := []string{"minimal", "low", "medium", "high", "critical"}
	idx := 0
	switch {
	case drift >= 0.7:
		idx = 4
	case drift >= 0.5:
		idx = 3
	case drift >= 0.3:
		idx = 2
	case drift >= 0.15:
		idx = 1
	}
	if suspicious >= 2 && idx < len(levels)-1 {
		idx++
	}
	return levels[idx]
}
