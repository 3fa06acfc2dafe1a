package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

type stubAI struct {
	result *ai.ClassificationResult
	err    error
	panics bool
}

func (s *stubAI) Classify(ctx context.Context, req ai.AnalysisRequest) (*ai.ClassificationResult, error) {
	if s.panics {
		panic("stub ai panic")
	}
	return s.result, s.err
}

type stubSemantic struct {
	analysis *vectorizer.SemanticAnalysis
	err      error
}

func (s *stubSemantic) Analyze(ctx context.Context, current, baseline *vectorizer.ContentSet) (*vectorizer.SemanticAnalysis, error) {
	return s.analysis, s.err
}

func newTestPipeline(t *testing.T, aiClient ai.Classifier, semantic SemanticAnalyzer) *Pipeline {
	t.Helper()
	rules, err := NewRuleEngine()
	require.NoError(t, err)
	return NewPipeline(rules, NewBehavioralAnalyzer(), aiClient, semantic,
		NewConfidenceCalculator(), config.Defaults().Pipeline)
}

func TestPipelineDefacementBanner(t *testing.T) {
	aiClient := &stubAI{result: &ai.ClassificationResult{
		Label:      models.ClassificationDefacement,
		Confidence: 0.92,
		Reasoning:  "attacker signature replacing homepage",
	}}
	semantic := &stubSemantic{analysis: &vectorizer.SemanticAnalysis{
		MainContentSimilarity: 0.05,
		Drift:                 0.95,
		RiskLevel:             "critical",
	}}
	p := newTestPipeline(t, aiClient, semantic)

	result := p.Classify(context.Background(), ClassificationRequest{
		ChangedContent:   []string{"HACKED BY xXDarkLordXx - we are legion"},
		SiteURL:          "https://example.com",
		CurrentStructure: StructureSummary{ElementCount: 5, ContentSimilarity: 0.05},
		BaselineStructure: &StructureSummary{
			ElementCount: 200,
		},
	})

	assert.Equal(t, models.ClassificationDefacement, result.FinalClassification)
	assert.Equal(t, models.ThreatDefacement, result.ThreatCategory)
	assert.GreaterOrEqual(t, result.ConfidenceScore, 0.8)
	assert.NotEmpty(t, result.Indicators)
	assert.Contains(t, result.RecommendedActions, "notify_security_team")
	assert.Greater(t, result.SeverityScore, 0.5)
	assert.True(t, result.Consensus.AgreementAIRule)
	assert.ElementsMatch(t, []string{"ai", "semantic", "rule_based", "behavioral"},
		result.Consensus.AvailableClassifiers)
	assert.Greater(t, result.ProcessingTime.Nanoseconds(), int64(0))
}

func TestPipelineBenignMaintenance(t *testing.T) {
	aiClient := &stubAI{result: &ai.ClassificationResult{
		Label:      models.ClassificationBenign,
		Confidence: 0.9,
		Reasoning:  "routine maintenance notice",
	}}
	semantic := &stubSemantic{analysis: &vectorizer.SemanticAnalysis{
		MainContentSimilarity: 0.85,
		RiskLevel:             "low",
	}}
	p := newTestPipeline(t, aiClient, semantic)

	result := p.Classify(context.Background(), ClassificationRequest{
		ChangedContent:    []string{"We are under maintenance. Copyright © 2026 Example."},
		SiteURL:           "https://example.com",
		CurrentStructure:  StructureSummary{ElementCount: 95, ContentSimilarity: 0.85},
		BaselineStructure: &StructureSummary{ElementCount: 100},
	})

	assert.Equal(t, models.ClassificationBenign, result.FinalClassification)
	assert.Contains(t, result.RecommendedActions, "continue_monitoring")
	assert.NotContains(t, result.RecommendedActions, "notify_security_team")
}

func TestPipelineBenignFirstCapture(t *testing.T) {
	p := newTestPipeline(t, nil, nil)

	// No baseline and no changed content, similarity defaulted to 1.0 as the
	// scraper reports for an initial capture.
	result := p.Classify(context.Background(), ClassificationRequest{
		SiteURL: "https://example.com",
		CurrentContent: &vectorizer.ContentSet{
			Title:      "Example",
			TextBlocks: []string{"Welcome", "Our normal homepage content about widgets."},
		},
		CurrentStructure: StructureSummary{ElementCount: 40, ContentSimilarity: 1.0},
	})

	require.NotNil(t, result)
	assert.NotEqual(t, models.ClassificationDefacement, result.FinalClassification)
	require.NotNil(t, result.BehavioralResult)
	assert.False(t, result.BehavioralResult.Anomalies["sudden_content_replacement"])
	assert.Equal(t, 0.0, result.BehavioralResult.Score)
}

func TestPipelineSurvivesCollaboratorFailures(t *testing.T) {
	aiClient := &stubAI{err: errors.New("llm unavailable")}
	semantic := &stubSemantic{err: errors.New("vector store down")}
	p := newTestPipeline(t, aiClient, semantic)

	result := p.Classify(context.Background(), ClassificationRequest{
		ChangedContent:   []string{"defaced by ghost_crew"},
		SiteURL:          "https://example.com",
		CurrentStructure: StructureSummary{ElementCount: 10, ContentSimilarity: 0.1},
	})

	require.NotNil(t, result)
	assert.Equal(t, models.ClassificationDefacement, result.FinalClassification)
	assert.Nil(t, result.AIResult)
	assert.Nil(t, result.SemanticAnalysis)
	assert.ElementsMatch(t, []string{"rule_based", "behavioral"},
		result.Consensus.AvailableClassifiers)
}

func TestPipelineSurvivesPanic(t *testing.T) {
	p := newTestPipeline(t, &stubAI{panics: true}, nil)

	result := p.Classify(context.Background(), ClassificationRequest{
		ChangedContent: []string{"hacked by someone"},
		SiteURL:        "https://example.com",
	})

	require.NotNil(t, result)
	assert.Nil(t, result.AIResult)
	assert.NotNil(t, result.RuleBasedResult)
}

func TestPipelineNoSignal(t *testing.T) {
	p := &Pipeline{
		confidence: NewConfidenceCalculator(),
		weights:    config.Defaults().Pipeline,
	}

	result := p.fuse(ClassificationRequest{}, nil, nil, nil, nil)

	assert.Equal(t, models.ClassificationUnclear, result.FinalClassification)
	assert.Equal(t, 0.0, result.ConfidenceScore)
	assert.Equal(t, "no signal", result.Reasoning)
	assert.Equal(t, models.ThreatUnknown, result.ThreatCategory)
}

func TestArgmaxLabelTieBreak(t *testing.T) {
	tests := []struct {
		name  string
		votes map[models.Classification]float64
		want  models.Classification
	}{
		{
			name: "clear winner",
			votes: map[models.Classification]float64{
				models.ClassificationBenign:     0.4,
				models.ClassificationDefacement: 0.1,
			},
			want: models.ClassificationBenign,
		},
		{
			name: "tie prefers defacement",
			votes: map[models.Classification]float64{
				models.ClassificationBenign:     0.3,
				models.ClassificationDefacement: 0.3,
			},
			want: models.ClassificationDefacement,
		},
		{
			name: "tie prefers unclear over benign",
			votes: map[models.Classification]float64{
				models.ClassificationBenign:  0.2,
				models.ClassificationUnclear: 0.2,
			},
			want: models.ClassificationUnclear,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, argmaxLabel(tt.votes))
		})
	}
}

func TestRecommendActionsCryptojacking(t *testing.T) {
	actions := recommendActions(models.ClassificationDefacement, models.ConfidenceVeryHigh, models.ThreatCryptojacking)

	assert.Contains(t, actions, "block_mining_pools")
	assert.Contains(t, actions, "escalate_to_incident_response")

	seen := map[string]int{}
	for _, a := range actions {
		seen[a]++
	}
	for a, n := range seen {
		assert.Equal(t, 1, n, "action %s duplicated", a)
	}
}
