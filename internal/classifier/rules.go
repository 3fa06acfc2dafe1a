package classifier

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/defacewatch/defacewatch/internal/models"
)

//go:embed patterns.yaml
var patternBank []byte

type patternEntry struct {
	Pattern    string  `yaml:"pattern"`
	Confidence float64 `yaml:"confidence"`
}

type patternFile struct {
	Categories map[string][]patternEntry `yaml:"categories"`
	Benign     []patternEntry            `yaml:"benign"`
}

type compiledPattern struct {
	re         *regexp.Regexp
	source     string
	confidence float64
}

// maxMatchesPerPattern caps the indicators emitted by a single pattern so a
// page repeating one banner cannot flood the result.
const maxMatchesPerPattern = 3

// contextRadius is how many characters around a match are kept as context.
const contextRadius = 50

// RuleEngine classifies content against the compiled pattern bank.
type RuleEngine struct {
	categories map[models.ThreatCategory][]compiledPattern
	benign     []compiledPattern
}

// NewRuleEngine compiles the embedded pattern bank.
func NewRuleEngine() (*RuleEngine, error) {
	var file patternFile
	if err := yaml.Unmarshal(patternBank, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pattern bank: %w", err)
	}

	e := &RuleEngine{categories: make(map[models.ThreatCategory][]compiledPattern)}
	total := 0
	for name, entries := range file.Categories {
		category := models.ThreatCategory(name)
		for _, entry := range entries {
			re, err := regexp.Compile("(?i)" + entry.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q in category %s: %w", entry.Pattern, name, err)
			}
			e.categories[category] = append(e.categories[category], compiledPattern{
				re:         re,
				source:     entry.Pattern,
				confidence: entry.Confidence,
			})
			total++
		}
	}
	for _, entry := range file.Benign {
		re, err := regexp.Compile("(?i)" + entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid benign pattern %q: %w", entry.Pattern, err)
		}
		e.benign = append(e.benign, compiledPattern{
			re:         re,
			source:     entry.Pattern,
			confidence: entry.Confidence,
		})
	}

	log.Debug().
		Int("categories", len(e.categories)).
		Int("patterns", total).
		Int("benignPatterns", len(e.benign)).
		Msg("Rule engine pattern bank compiled")
	return e, nil
}

// Classify runs the pattern bank over the given content fragments.
func (e *RuleEngine) Classify(fragments []string, siteContext map[string]interface{}) *RuleBasedResult {
	result := &RuleBasedResult{
		Classification:  models.ClassificationBenign,
		RuleScores:      map[string]float64{},
		PrimaryCategory: models.ThreatUnknown,
	}

	content := strings.TrimSpace(strings.Join(fragments, " "))
	if content == "" {
		result.Reasoning = "no content to analyze"
		return result
	}

	categoryScores := map[models.ThreatCategory]float64{}
	for category, patterns := range e.categories {
		for _, p := range patterns {
			matches := p.re.FindAllStringIndex(content, maxMatchesPerPattern)
			if len(matches) == 0 {
				continue
			}
			ruleName := string(category) + ":" + p.source
			result.TriggeredRules = append(result.TriggeredRules, ruleName)
			result.RuleScores[ruleName] = p.confidence
			categoryScores[category] += p.confidence

			for _, m := range matches {
				result.Indicators = append(result.Indicators, models.ThreatIndicator{
					Pattern:     p.source,
					Category:    category,
					Confidence:  p.confidence,
					MatchedText: content[m[0]:m[1]],
					Context:     surround(content, m[0], m[1], contextRadius),
				})
			}
		}
	}

	var benignScore float64
	for _, p := range e.benign {
		if p.re.MatchString(content) {
			benignScore += p.confidence
			result.RuleScores["benign:"+p.source] = p.confidence
		}
	}

	var total float64
	for _, score := range categoryScores {
		total += score
	}
	total += benignScore
	result.PrimaryCategory = primaryCategory(categoryScores)

	result.Confidence = clamp01(abs(total))
	result.Classification = labelFromTotal(total)

	if len(categoryScores) >= 3 {
		result.Confidence = clamp01(result.Confidence * 1.2)
	}

	result.Reasoning = e.buildReasoning(result, categoryScores)
	return result
}

// categoryRank fixes the tie-break order for equal category scores, most
// severe first.
var categoryRank = []models.ThreatCategory{
	models.ThreatDefacement,
	models.ThreatBackdoor,
	models.ThreatMalware,
	models.ThreatCryptojacking,
	models.ThreatSQLInjection,
	models.ThreatXSS,
	models.ThreatPhishing,
}

// primaryCategory returns the highest-scoring category, breaking ties on the
// fixed rank so equal scores resolve the same way on every run.
func primaryCategory(scores map[models.ThreatCategory]float64) models.ThreatCategory {
	primary := models.ThreatUnknown
	best := 0.0
	for _, category := range categoryRank {
		if score, ok := scores[category]; ok && (primary == models.ThreatUnknown || score > best) {
			primary = category
			best = score
		}
	}
	return primary
}

// labelFromTotal maps the signed net score onto a label. Negative totals
// come from benign indicators outweighing threats.
func labelFromTotal(total float64) models.Classification {
	switch {
	case total >= 0.7:
		return models.ClassificationDefacement
	case total >= 0.4:
		return models.ClassificationUnclear
	default:
		return models.ClassificationBenign
	}
}

func (e *RuleEngine) buildReasoning(result *RuleBasedResult, categoryScores map[models.ThreatCategory]float64) string {
	if len(result.TriggeredRules) == 0 {
		return "no threat patterns matched"
	}

	var band string
	switch {
	case result.Confidence >= 0.8:
		band = "strong"
	case result.Confidence >= 0.5:
		band = "moderate"
	default:
		band = "weak"
	}

	others := make([]string, 0, len(categoryScores))
	for category := range categoryScores {
		if category != result.PrimaryCategory {
			others = append(others, string(category))
		}
	}
	sort.Strings(others)

	topRules := append([]string(nil), result.TriggeredRules...)
	sort.Slice(topRules, func(i, j int) bool {
		return result.RuleScores[topRules[i]] > result.RuleScores[topRules[j]]
	})
	if len(topRules) > 3 {
		topRules = topRules[:3]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s signal", band, result.PrimaryCategory)
	if len(others) > 0 {
		fmt.Fprintf(&b, " (also: %s)", strings.Join(others, ", "))
	}
	fmt.Fprintf(&b, "; top rules: %s", strings.Join(topRules, ", "))
	if result.Classification == models.ClassificationDefacement {
		b.WriteString("; immediate review recommended")
	}
	return b.String()
}

func surround(content string, start, end, radius int) string {
	from := start - radius
	if from < 0 {
		from = 0
	}
	to := end + radius
	if to > len(content) {
		to = len(content)
	}
	return content[from:to]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
