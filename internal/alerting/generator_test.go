package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/classifier"
	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/models"
)

func testGenerator() (*Generator, *time.Time) {
	g := NewGenerator(config.Defaults().Alert)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func defacementResult(confidence float64) *classifier.PipelineResult {
	return &classifier.PipelineResult{
		FinalClassification: models.ClassificationDefacement,
		ConfidenceScore:     confidence,
		ConfidenceLevel:     models.ConfidenceLevelFromScore(confidence),
		ThreatCategory:      models.ThreatDefacement,
		Indicators: []models.ThreatIndicator{
			{Pattern: `hacked\s+by\s+\w+`, Category: models.ThreatDefacement, Confidence: 0.95},
		},
		RuleBasedResult: &classifier.RuleBasedResult{
			Classification: models.ClassificationDefacement,
			Confidence:     confidence,
		},
		RecommendedActions: []string{"notify_security_team"},
	}
}

func TestGenerateDefacementAlert(t *testing.T) {
	g, _ := testGenerator()

	alert := g.Generate(defacementResult(0.96), AlertContext{
		WebsiteID:   "site-1",
		WebsiteName: "Example",
		WebsiteURL:  "https://example.com",
	})

	require.NotNil(t, alert)
	assert.Equal(t, AlertDefacementDetected, alert.Type)
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Equal(t, 4, alert.EscalationLevel)
	assert.Equal(t, "site-1:DEFACEMENT_DETECTED", alert.SuppressionKey)
	assert.Contains(t, alert.Title, "Example")
	assert.Equal(t, "URGENT: initiate incident response", alert.RecommendedActions[0])
	assert.Contains(t, alert.RecommendedActions, "notify_security_team")
	assert.NotEmpty(t, alert.ID)
}

func TestGenerateGate(t *testing.T) {
	g, _ := testGenerator()

	tests := []struct {
		name   string
		result *classifier.PipelineResult
		ctx    AlertContext
		want   bool
	}{
		{
			name: "benign low confidence does not trigger",
			result: &classifier.PipelineResult{
				FinalClassification: models.ClassificationBenign,
				ConfidenceLevel:     models.ConfidenceLow,
			},
			want: false,
		},
		{
			name: "unclear at high confidence triggers",
			result: &classifier.PipelineResult{
				FinalClassification: models.ClassificationUnclear,
				ConfidenceScore:     0.7,
				ConfidenceLevel:     models.ConfidenceHigh,
			},
			want: true,
		},
		{
			name: "unclear at medium confidence does not trigger",
			result: &classifier.PipelineResult{
				FinalClassification: models.ClassificationUnclear,
				ConfidenceScore:     0.5,
				ConfidenceLevel:     models.ConfidenceMedium,
			},
			want: false,
		},
		{
			name: "significant visual change triggers regardless of label",
			result: &classifier.PipelineResult{
				FinalClassification: models.ClassificationBenign,
				ConfidenceLevel:     models.ConfidenceLow,
			},
			ctx:  AlertContext{Visual: VisualChanges{HasSignificantChange: true}},
			want: true,
		},
		{
			name: "strong rule confidence triggers on benign label",
			result: &classifier.PipelineResult{
				FinalClassification: models.ClassificationBenign,
				ConfidenceLevel:     models.ConfidenceLow,
				RuleBasedResult: &classifier.RuleBasedResult{
					Classification: models.ClassificationUnclear,
					Confidence:     0.75,
				},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ctx.WebsiteID = "site-" + tt.name
			alert := g.Generate(tt.result, tt.ctx)
			if tt.want {
				assert.NotNil(t, alert)
			} else {
				assert.Nil(t, alert)
			}
		})
	}
}

func TestUnclearHighProducesContentAnomaly(t *testing.T) {
	g, _ := testGenerator()

	alert := g.Generate(&classifier.PipelineResult{
		FinalClassification: models.ClassificationUnclear,
		ConfidenceScore:     0.72,
		ConfidenceLevel:     models.ConfidenceHigh,
		ThreatCategory:      models.ThreatUnknown,
	}, AlertContext{WebsiteID: "site-1"})

	require.NotNil(t, alert)
	assert.Equal(t, AlertContentAnomaly, alert.Type)
	assert.Equal(t, SeverityMedium, alert.Severity)
}

func TestEscalationFactorsRaiseSeverity(t *testing.T) {
	g, _ := testGenerator()

	// Defacement at MEDIUM confidence starts at MEDIUM (ordinal 2); the
	// factor deltas push it past the 3.5 CRITICAL threshold.
	result := defacementResult(0.55)
	alert := g.Generate(result, AlertContext{
		WebsiteID: "site-1",
		Changes: ChangeDetails{
			ChangeCount:        6,
			RapidChanges:       true,
			ContentReplacement: true,
		},
		Visual: VisualChanges{HasSignificantChange: true},
	})

	require.NotNil(t, alert)
	// 2 + 0.5 + 0.6 + 0.6 + 0.3 + 0.4 (indicators present) = 4.4
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Equal(t, AlertDefacementDetected, alert.Type)
}

func TestSuppressionWindow(t *testing.T) {
	g, now := testGenerator()

	first := g.Generate(defacementResult(0.96), AlertContext{WebsiteID: "site-1"})
	require.NotNil(t, first)
	assert.Equal(t, SeverityCritical, first.Severity)

	// 60 seconds later: inside the 5-minute CRITICAL window.
	*now = now.Add(60 * time.Second)
	second := g.Generate(defacementResult(0.96), AlertContext{WebsiteID: "site-1"})
	assert.Nil(t, second)

	// A different website is independent.
	other := g.Generate(defacementResult(0.96), AlertContext{WebsiteID: "site-2"})
	assert.NotNil(t, other)

	// Exactly at the window edge the repeat is allowed.
	*now = now.Add(4 * time.Minute)
	third := g.Generate(defacementResult(0.96), AlertContext{WebsiteID: "site-1"})
	assert.NotNil(t, third)
}

func TestSuppressionKeyIncludesAlertType(t *testing.T) {
	g, _ := testGenerator()

	defacement := g.Generate(defacementResult(0.96), AlertContext{WebsiteID: "site-1"})
	require.NotNil(t, defacement)

	// Same site, different alert type: not suppressed.
	anomaly := g.Generate(&classifier.PipelineResult{
		FinalClassification: models.ClassificationUnclear,
		ConfidenceScore:     0.72,
		ConfidenceLevel:     models.ConfidenceHigh,
	}, AlertContext{WebsiteID: "site-1"})
	assert.NotNil(t, anomaly)
}
