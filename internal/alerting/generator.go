package alerting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/classifier"
	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/metrics"
	"github.com/defacewatch/defacewatch/internal/models"
)

// escalationDeltas are additive adjustments on the 1..4 severity axis.
var escalationDeltas = map[string]float64{
	"multiple_changes":    0.5,
	"visual_changes":      0.3,
	"suspicious_patterns": 0.4,
	"historical_anomaly":  0.3,
	"rapid_changes":       0.6,
	"external_links":      0.2,
	"script_injection":    0.8,
	"content_replacement": 0.6,
}

// Generator gates, scores and suppresses alerts. Suppression state is
// in-memory and keyed by (website, alert type).
type Generator struct {
	windows config.AlertConfig
	now     func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewGenerator builds a generator with the given suppression windows.
func NewGenerator(windows config.AlertConfig) *Generator {
	return &Generator{
		windows:  windows,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Generate evaluates a pipeline result and returns an alert, or nil when
// the gate does not trigger or the alert is inside its suppression window.
func (g *Generator) Generate(result *classifier.PipelineResult, alertCtx AlertContext) *Alert {
	if !g.shouldAlert(result, alertCtx) {
		metrics.AlertsSuppressedTotal.WithLabelValues("not_triggered").Inc()
		return nil
	}

	severity := g.severity(result, alertCtx)
	alertType := alertTypeFor(result.FinalClassification, severity, result.ConfidenceLevel)
	key := fmt.Sprintf("%s:%s", alertCtx.WebsiteID, alertType)

	if g.suppressed(key, severity) {
		log.Debug().
			Str("suppressionKey", key).
			Str("severity", string(severity)).
			Msg("Alert suppressed by active window")
		metrics.AlertsSuppressedTotal.WithLabelValues("suppression_window").Inc()
		return nil
	}

	alert := &Alert{
		ID:                  uuid.New().String(),
		Type:                alertType,
		Severity:            severity,
		Title:               buildTitle(alertType, alertCtx),
		Description:         buildDescription(alertType, result, alertCtx),
		Context:             alertCtx,
		ClassificationLabel: result.FinalClassification,
		ConfidenceScore:     result.ConfidenceScore,
		RecommendedActions:  alertActions(alertType, severity, result),
		EscalationLevel:     severity.Ordinal(),
		SuppressionKey:      key,
		CreatedAt:           g.now(),
	}
	if result.SemanticAnalysis != nil {
		sim := result.SemanticAnalysis.MainContentSimilarity
		alert.SimilarityScore = &sim
	}

	metrics.AlertsGeneratedTotal.WithLabelValues(string(severity), string(alertType)).Inc()
	log.Info().
		Str("alertID", alert.ID).
		Str("type", string(alertType)).
		Str("severity", string(severity)).
		Str("websiteID", alertCtx.WebsiteID).
		Float64("confidence", result.ConfidenceScore).
		Msg("Alert generated")
	return alert
}

// shouldAlert is the gate: any arm triggering produces an alert.
func (g *Generator) shouldAlert(result *classifier.PipelineResult, alertCtx AlertContext) bool {
	if result.FinalClassification == models.ClassificationDefacement {
		return true
	}
	if result.FinalClassification == models.ClassificationUnclear &&
		(result.ConfidenceLevel == models.ConfidenceHigh || result.ConfidenceLevel == models.ConfidenceVeryHigh) {
		return true
	}
	if alertCtx.Visual.HasSignificantChange {
		return true
	}
	if result.RuleBasedResult != nil && result.RuleBasedResult.Confidence > 0.7 {
		return true
	}
	return false
}

// severity starts from the (label, level) matrix and applies additive
// escalation factors on the 1..4 axis.
func (g *Generator) severity(result *classifier.PipelineResult, alertCtx AlertContext) Severity {
	base := baseSeverity(result.FinalClassification, result.ConfidenceLevel)

	score := float64(base.Ordinal())
	for factor, present := range detectFactors(result, alertCtx) {
		if present {
			score += escalationDeltas[factor]
		}
	}
	escalated := severityFromScore(score)
	if escalated.Ordinal() < base.Ordinal() {
		return base
	}
	return escalated
}

func baseSeverity(label models.Classification, level models.ConfidenceLevel) Severity {
	switch label {
	case models.ClassificationDefacement:
		switch level {
		case models.ConfidenceVeryHigh, models.ConfidenceCritical:
			return SeverityCritical
		case models.ConfidenceHigh:
			return SeverityHigh
		case models.ConfidenceMedium:
			return SeverityMedium
		default:
			return SeverityLow
		}
	case models.ClassificationUnclear:
		switch level {
		case models.ConfidenceHigh, models.ConfidenceVeryHigh, models.ConfidenceCritical:
			return SeverityMedium
		default:
			return SeverityLow
		}
	default:
		return SeverityLow
	}
}

func detectFactors(result *classifier.PipelineResult, alertCtx AlertContext) map[string]bool {
	factors := map[string]bool{
		"multiple_changes":    alertCtx.Changes.ChangeCount > 3,
		"visual_changes":      alertCtx.Visual.HasSignificantChange,
		"suspicious_patterns": len(result.Indicators) > 0,
		"historical_anomaly":  alertCtx.Historical.IsAnomalous,
		"rapid_changes":       alertCtx.Changes.RapidChanges,
		"external_links":      alertCtx.Changes.NewExternalLinks > 0,
		"content_replacement": alertCtx.Changes.ContentReplacement,
	}

	scriptInjection := false
	for _, ind := range result.Indicators {
		if ind.Category == models.ThreatXSS || ind.Category == models.ThreatMalware ||
			ind.Category == models.ThreatCryptojacking {
			scriptInjection = true
			break
		}
	}
	if !scriptInjection && result.BehavioralResult != nil {
		scriptInjection = result.BehavioralResult.Anomalies["suspicious_script_injection"]
	}
	factors["script_injection"] = scriptInjection
	return factors
}

func alertTypeFor(label models.Classification, severity Severity, level models.ConfidenceLevel) AlertType {
	switch label {
	case models.ClassificationDefacement:
		if severity == SeverityHigh || severity == SeverityCritical {
			return AlertDefacementDetected
		}
		return AlertSuspiciousActivity
	case models.ClassificationUnclear:
		if level == models.ConfidenceHigh || level == models.ConfidenceVeryHigh {
			return AlertContentAnomaly
		}
		return AlertClassificationUncertainty
	default:
		return AlertSuspiciousActivity
	}
}

// suppressed checks and records the suppression window for key. A repeat
// exactly at the window edge is allowed through.
func (g *Generator) suppressed(key string, severity Severity) bool {
	window := g.window(severity)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.lastSent[key]; ok && now.Sub(last) < window {
		return true
	}
	g.lastSent[key] = now
	return false
}

func (g *Generator) window(severity Severity) time.Duration {
	switch severity {
	case SeverityCritical:
		return g.windows.ThrottleCritical
	case SeverityHigh:
		return g.windows.ThrottleHigh
	case SeverityMedium:
		return g.windows.ThrottleMedium
	default:
		return g.windows.ThrottleLow
	}
}

func buildTitle(alertType AlertType, alertCtx AlertContext) string {
	site := alertCtx.WebsiteName
	if site == "" {
		site = alertCtx.WebsiteURL
	}
	switch alertType {
	case AlertDefacementDetected:
		return fmt.Sprintf("Defacement detected on %s", site)
	case AlertContentAnomaly:
		return fmt.Sprintf("Content anomaly on %s", site)
	case AlertClassificationUncertainty:
		return fmt.Sprintf("Unclassified change on %s", site)
	case AlertSiteDown:
		return fmt.Sprintf("Site down: %s", site)
	case AlertSystemError:
		return fmt.Sprintf("Monitoring error for %s", site)
	default:
		return fmt.Sprintf("Suspicious activity on %s", site)
	}
}

func buildDescription(alertType AlertType, result *classifier.PipelineResult, alertCtx AlertContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classified as %s with %.0f%% confidence (%s).",
		result.FinalClassification, result.ConfidenceScore*100, result.ConfidenceLevel)
	if result.ThreatCategory != models.ThreatUnknown {
		fmt.Fprintf(&b, " Threat category: %s.", result.ThreatCategory)
	}
	if alertCtx.Changes.Summary != "" {
		fmt.Fprintf(&b, " %s", alertCtx.Changes.Summary)
	}
	if result.Reasoning != "" {
		fmt.Fprintf(&b, " Analysis: %s", result.Reasoning)
	}
	return b.String()
}

// alertActions merges the pipeline's recommendations with per-type ones.
// CRITICAL alerts get an URGENT marker prepended.
func alertActions(alertType AlertType, severity Severity, result *classifier.PipelineResult) []string {
	var out []string
	seen := map[string]bool{}
	add := func(actions ...string) {
		for _, a := range actions {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}

	switch alertType {
	case AlertDefacementDetected:
		add("verify_defacement_manually", "take_site_offline_if_confirmed")
	case AlertContentAnomaly:
		add("review_content_diff")
	case AlertClassificationUncertainty:
		add("schedule_manual_review")
	case AlertSiteDown:
		add("check_hosting_provider")
	}
	add(result.RecommendedActions...)

	if severity == SeverityCritical {
		out = append([]string{"URGENT: initiate incident response"}, out...)
	}
	return out
}
