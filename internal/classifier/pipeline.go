package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/metrics"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

// SemanticAnalyzer is the drift-analysis collaborator the pipeline fans out
// to.
type SemanticAnalyzer interface {
	Analyze(ctx context.Context, current, baseline *vectorizer.ContentSet) (*vectorizer.SemanticAnalysis, error)
}

// baseSeverity maps a threat category onto its base severity weight.
var baseSeverity = map[models.ThreatCategory]float64{
	models.ThreatDefacement:    0.90,
	models.ThreatBackdoor:      0.95,
	models.ThreatSQLInjection:  0.85,
	models.ThreatMalware:       0.85,
	models.ThreatPhishing:      0.80,
	models.ThreatCryptojacking: 0.75,
	models.ThreatXSS:           0.70,
	models.ThreatUnknown:       0.50,
}

var labelActions = map[models.Classification][]string{
	models.ClassificationDefacement: {
		"isolate_affected_pages",
		"notify_security_team",
		"preserve_evidence",
	},
	models.ClassificationUnclear: {
		"schedule_manual_review",
		"increase_monitoring_frequency",
	},
	models.ClassificationBenign: {
		"continue_monitoring",
	},
}

var levelActions = map[models.ConfidenceLevel][]string{
	models.ConfidenceCritical: {"escalate_to_incident_response"},
	models.ConfidenceVeryHigh: {"escalate_to_incident_response"},
	models.ConfidenceHigh:     {"notify_on_call"},
}

var categoryActions = map[models.ThreatCategory][]string{
	models.ThreatCryptojacking: {"block_mining_pools", "scan_for_injected_scripts"},
	models.ThreatBackdoor:      {"audit_server_access", "rotate_credentials"},
	models.ThreatPhishing:      {"report_to_blocklists"},
	models.ThreatSQLInjection:  {"review_database_logs"},
	models.ThreatXSS:           {"sanitize_user_inputs"},
	models.ThreatMalware:       {"quarantine_injected_content"},
}

// Pipeline fans a classification request out to the four sub-classifiers
// and fuses their verdicts with a weighted vote. It holds no per-request
// state.
type Pipeline struct {
	rules      *RuleEngine
	behavioral *BehavioralAnalyzer
	aiClient   ai.Classifier
	semantic   SemanticAnalyzer
	confidence *ConfidenceCalculator
	weights    config.PipelineConfig
}

// NewPipeline assembles a pipeline. The AI and semantic collaborators may
// be nil; the pipeline degrades to the remaining classifiers.
func NewPipeline(rules *RuleEngine, behavioral *BehavioralAnalyzer, aiClient ai.Classifier, semantic SemanticAnalyzer, confidence *ConfidenceCalculator, weights config.PipelineConfig) *Pipeline {
	return &Pipeline{
		rules:      rules,
		behavioral: behavioral,
		aiClient:   aiClient,
		semantic:   semantic,
		confidence: confidence,
		weights:    weights,
	}
}

// Confidence exposes the fusion calculator so feedback processing can move
// the historical baseline.
func (p *Pipeline) Confidence() *ConfidenceCalculator {
	return p.confidence
}

// Classify runs the full pipeline. Sub-classifier failures are logged and
// treated as missing signal; the pipeline itself never fails.
func (p *Pipeline) Classify(ctx context.Context, req ClassificationRequest) *PipelineResult {
	start := time.Now()

	var (
		wg               sync.WaitGroup
		aiResult         *ai.ClassificationResult
		semanticAnalysis *vectorizer.SemanticAnalysis
		ruleResult       *RuleBasedResult
		behavioralResult *BehavioralResult
	)

	if p.aiClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverSubClassifier(req.SiteURL, "ai")
			res, err := p.aiClient.Classify(ctx, ai.AnalysisRequest{
				ChangedContent: req.ChangedContent,
				StaticContext:  req.StaticContext,
				SiteURL:        req.SiteURL,
				SiteContext:    req.SiteContext,
				Prior:          req.Prior,
			})
			if err != nil {
				log.Warn().Err(err).Str("url", req.SiteURL).Msg("AI classification failed, continuing without it")
				return
			}
			aiResult = res
		}()
	}

	if p.semantic != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverSubClassifier(req.SiteURL, "semantic")
			res, err := p.semantic.Analyze(ctx, req.CurrentContent, req.BaselineContent)
			if err != nil {
				log.Warn().Err(err).Str("url", req.SiteURL).Msg("Semantic analysis failed, continuing without it")
				return
			}
			semanticAnalysis = res
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverSubClassifier(req.SiteURL, "rules")
		ruleResult = p.rules.Classify(req.ChangedContent, req.SiteContext)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverSubClassifier(req.SiteURL, "behavioral")
		behavioralResult = p.behavioral.Analyze(req.CurrentStructure, req.BaselineStructure, req.ChangedContent, req.ExternalResources)
	}()

	wg.Wait()

	result := p.fuse(req, aiResult, semanticAnalysis, ruleResult, behavioralResult)
	result.ProcessingTime = time.Since(start)
	result.Timestamp = time.Now()

	metrics.ClassificationsTotal.WithLabelValues(string(result.FinalClassification)).Inc()
	metrics.PipelineDurationSeconds.Observe(result.ProcessingTime.Seconds())

	log.Info().
		Str("url", req.SiteURL).
		Str("label", string(result.FinalClassification)).
		Float64("confidence", result.ConfidenceScore).
		Str("category", string(result.ThreatCategory)).
		Dur("duration", result.ProcessingTime).
		Msg("Classification pipeline complete")
	return result
}

func (p *Pipeline) fuse(
	req ClassificationRequest,
	aiResult *ai.ClassificationResult,
	semanticAnalysis *vectorizer.SemanticAnalysis,
	ruleResult *RuleBasedResult,
	behavioralResult *BehavioralResult,
) *PipelineResult {
	result := &PipelineResult{
		AIResult:         aiResult,
		SemanticAnalysis: semanticAnalysis,
		RuleBasedResult:  ruleResult,
		BehavioralResult: behavioralResult,
		ClassifierWeights: map[string]float64{
			"ai":            p.weights.WeightAI,
			"rule_based":    p.weights.WeightRule,
			"semantic":      p.weights.WeightSemantic,
			"behavioral":    p.weights.WeightBehavioral,
			"pattern_match": p.weights.WeightPattern,
		},
	}

	if aiResult == nil && semanticAnalysis == nil && ruleResult == nil && behavioralResult == nil {
		result.FinalClassification = models.ClassificationUnclear
		result.ConfidenceScore = 0
		result.ConfidenceLevel = models.ConfidenceLevelFromScore(0)
		result.ThreatCategory = models.ThreatUnknown
		result.Reasoning = "no signal"
		return result
	}

	votes := map[models.Classification]float64{}
	var available []string

	if aiResult != nil {
		votes[aiResult.Label] += p.weights.WeightAI * aiResult.Confidence
		available = append(available, "ai")
	}
	if ruleResult != nil {
		boost := 1.0
		if ruleResult.Confidence > 0.8 {
			boost = 1.5
		}
		votes[ruleResult.Classification] += p.weights.WeightRule * ruleResult.Confidence * boost
		available = append(available, "rule_based")
	}
	if semanticAnalysis != nil {
		switch semanticAnalysis.RiskLevel {
		case "high", "critical":
			votes[models.ClassificationDefacement] += 0.9 * p.weights.WeightSemantic
		case "low", "minimal":
			votes[models.ClassificationBenign] += 0.9 * p.weights.WeightSemantic
		default:
			votes[models.ClassificationUnclear] += 0.7 * p.weights.WeightSemantic
		}
		available = append(available, "semantic")
	}
	if behavioralResult != nil {
		switch behavioralResult.RiskLevel {
		case "high", "critical":
			votes[models.ClassificationDefacement] += 0.8 * p.weights.WeightBehavioral
		case "low", "minimal":
			votes[models.ClassificationBenign] += 0.8 * p.weights.WeightBehavioral
		default:
			votes[models.ClassificationUnclear] += 0.6 * p.weights.WeightBehavioral
		}
		available = append(available, "behavioral")
	}

	result.FinalClassification = argmaxLabel(votes)

	score, factors := p.confidence.Calculate(aiResult, semanticAnalysis, ruleResult, behavioralResult)
	result.ConfidenceScore = score
	result.ConfidenceLevel = models.ConfidenceLevelFromScore(score)

	result.ThreatCategory = models.ThreatUnknown
	if ruleResult != nil {
		result.ThreatCategory = ruleResult.PrimaryCategory
		result.Indicators = ruleResult.Indicators
	}

	result.SeverityScore = severityScore(result.ThreatCategory, score, result.Indicators)
	result.RecommendedActions = recommendActions(result.FinalClassification, result.ConfidenceLevel, result.ThreatCategory)

	result.Consensus = ConsensusMetrics{
		AvailableClassifiers: available,
		FactorBreakdown:      factors,
		AgreementAIRule: aiResult != nil && ruleResult != nil &&
			aiResult.Label == ruleResult.Classification,
	}

	result.Reasoning = buildPipelineReasoning(result, aiResult, ruleResult)
	return result
}

// argmaxLabel picks the highest-voted label. Ties break toward the more
// alarming label so a dead heat never reads as benign.
func argmaxLabel(votes map[models.Classification]float64) models.Classification {
	order := []models.Classification{
		models.ClassificationDefacement,
		models.ClassificationUnclear,
		models.ClassificationBenign,
	}
	best := models.ClassificationUnclear
	bestScore := -1.0
	for _, label := range order {
		if votes[label] > bestScore {
			best = label
			bestScore = votes[label]
		}
	}
	return best
}

func severityScore(category models.ThreatCategory, confidence float64, indicators []models.ThreatIndicator) float64 {
	score := baseSeverity[category] * confidence

	highConf := 0
	for _, ind := range indicators {
		if ind.Confidence >= 0.8 {
			highConf++
		}
	}
	if highConf >= 4 {
		score *= 1.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// recommendActions unions the per-label, per-level and per-category action
// sets, preserving insertion order and deduplicating.
func recommendActions(label models.Classification, level models.ConfidenceLevel, category models.ThreatCategory) []string {
	var out []string
	seen := map[string]bool{}
	add := func(actions []string) {
		for _, a := range actions {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	add(labelActions[label])
	add(levelActions[level])
	if label != models.ClassificationBenign {
		add(categoryActions[category])
	}
	return out
}

func buildPipelineReasoning(result *PipelineResult, aiResult *ai.ClassificationResult, ruleResult *RuleBasedResult) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s at %s confidence (%.2f)",
		result.FinalClassification, result.ConfidenceLevel, result.ConfidenceScore))
	if ruleResult != nil && ruleResult.Reasoning != "" {
		parts = append(parts, "rules: "+ruleResult.Reasoning)
	}
	if aiResult != nil && aiResult.Reasoning != "" {
		parts = append(parts, "ai: "+aiResult.Reasoning)
	}
	return strings.Join(parts, "; ")
}

func recoverSubClassifier(url, name string) {
	if r := recover(); r != nil {
		log.Error().
			Str("url", url).
			Str("classifier", name).
			Interface("panic", r).
			Msg("Sub-classifier panicked, treating as no signal")
	}
}
