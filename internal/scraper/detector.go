package scraper

import "strings"

// DiffDetector is the default ChangeDetector: token-set similarity over the
// extracted fields.
type DiffDetector struct{}

// NewDiffDetector returns the default detector.
func NewDiffDetector() *DiffDetector {
	return &DiffDetector{}
}

// Compare diffs two extractions. A nil previous extraction is treated as an
// empty page.
func (d *DiffDetector) Compare(previous, current *ExtractedContent) (*ChangeAnalysis, error) {
	if previous == nil {
		previous = &ExtractedContent{}
	}

	analysis := &ChangeAnalysis{
		ContentSimilarity: jaccard(tokenize(previous.MainContent), tokenize(current.MainContent)),
	}

	if previous.Title != current.Title {
		analysis.ChangedSections = append(analysis.ChangedSections, "title")
		if current.Title != "" {
			analysis.ChangedContent = append(analysis.ChangedContent, current.Title)
		}
	}
	if previous.MetaDescription != current.MetaDescription {
		analysis.ChangedSections = append(analysis.ChangedSections, "meta_description")
		if current.MetaDescription != "" {
			analysis.ChangedContent = append(analysis.ChangedContent, current.MetaDescription)
		}
	}
	if analysis.ContentSimilarity < 0.98 {
		analysis.ChangedSections = append(analysis.ChangedSections, "main_content")
	}

	baseline := map[string]bool{}
	for _, block := range previous.TextBlocks {
		baseline[block] = true
	}
	newBlocks := false
	for _, block := range current.TextBlocks {
		if !baseline[block] {
			newBlocks = true
			analysis.ChangedContent = append(analysis.ChangedContent, block)
		}
	}
	if newBlocks {
		analysis.ChangedSections = append(analysis.ChangedSections, "text_blocks")
	}

	known := map[string]bool{}
	for _, r := range previous.ExternalResources {
		known[r] = true
	}
	for _, r := range current.ExternalResources {
		if !known[r] {
			analysis.NewExternalLinks++
		}
	}

	analysis.ChangeCount = len(analysis.ChangedSections)
	analysis.HasChanged = analysis.ChangeCount > 0 || analysis.NewExternalLinks > 0
	analysis.ContentReplacement = analysis.ContentSimilarity < 0.3
	return analysis, nil
}

func tokenize(text string) map[string]bool {
	tokens := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(text)) {
		tokens[t] = true
	}
	return tokens
}

// jaccard measures token-set overlap. Two empty sets are identical.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	unionSize := len(a) + len(b) - intersection
	if unionSize == 0 {
		return 1.0
	}
	return float64(intersection) / float64(unionSize)
}
