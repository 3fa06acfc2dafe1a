package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/defacewatch/defacewatch/internal/models"
)

const (
	defaultMetricsWindow = 30 * 24 * time.Hour
	defaultTrendPeriods  = 12
	defaultTrendWindow   = 7 * 24 * time.Hour
)

// Metrics are detection-quality numbers over one window.
type Metrics struct {
	WindowStart       time.Time `json:"windowStart"`
	WindowEnd         time.Time `json:"windowEnd"`
	TruePositives     int       `json:"truePositives"`
	FalsePositives    int       `json:"falsePositives"`
	FalseNegatives    int       `json:"falseNegatives"`
	TrueNegatives     int       `json:"trueNegatives"`
	Precision         float64   `json:"precision"`
	Recall            float64   `json:"recall"`
	F1                float64   `json:"f1"`
	FalsePositiveRate float64   `json:"falsePositiveRate"`
	FalseNegativeRate float64   `json:"falseNegativeRate"`
	Accuracy          float64   `json:"accuracy"`
	TotalFeedback     int       `json:"totalFeedback"`
}

// Summary aggregates feedback volume by type and source.
type Summary struct {
	ByType        map[models.FeedbackType]int   `json:"byType"`
	BySource      map[models.FeedbackSource]int `json:"bySource"`
	RecentCount   int                           `json:"recentCount"` // trailing 7 days
	AveragePerDay float64                       `json:"averagePerDay"`
}

// Report is the full performance report.
type Report struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	Current         Metrics   `json:"current"`
	Trends          []Metrics `json:"trends"`
	Feedback        Summary   `json:"feedback"`
	Recommendations []string  `json:"recommendations"`
}

// PerformanceTracker computes metrics, trends and reports from stored
// feedback.
type PerformanceTracker struct {
	store Store
	now   func() time.Time
}

// NewPerformanceTracker builds a tracker over the given store.
func NewPerformanceTracker(store Store) *PerformanceTracker {
	return &PerformanceTracker{store: store, now: time.Now}
}

// Metrics computes detection metrics for feedback created in [start, end).
func (t *PerformanceTracker) Metrics(ctx context.Context, start, end time.Time) (*Metrics, error) {
	entries, err := t.store.ListFeedbackBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback window: %w", err)
	}

	m := &Metrics{WindowStart: start, WindowEnd: end, TotalFeedback: len(entries)}
	for _, f := range entries {
		switch outcome(f) {
		case "tp":
			m.TruePositives++
		case "fp":
			m.FalsePositives++
		case "fn":
			m.FalseNegatives++
		case "tn":
			m.TrueNegatives++
		}
	}

	if m.TruePositives+m.FalsePositives > 0 {
		m.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		m.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	if m.TotalFeedback > 0 {
		total := float64(m.TotalFeedback)
		m.FalsePositiveRate = float64(m.FalsePositives) / total
		m.FalseNegativeRate = float64(m.FalseNegatives) / total
		m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / total
	}
	return m, nil
}

// outcome buckets one feedback entry into the confusion matrix. The
// corrected label is ground truth; the original label is the prediction.
func outcome(f *models.Feedback) string {
	switch f.Type {
	case models.FeedbackFalsePositive:
		return "fp"
	case models.FeedbackFalseNegative:
		return "fn"
	}

	truth := f.CorrectedLabel
	if truth == "" || truth == models.ClassificationUnclear {
		return ""
	}
	predictedPositive := f.OriginalLabel == models.ClassificationDefacement
	actuallyPositive := truth == models.ClassificationDefacement
	switch {
	case predictedPositive && actuallyPositive:
		return "tp"
	case predictedPositive && !actuallyPositive:
		return "fp"
	case !predictedPositive && actuallyPositive:
		return "fn"
	default:
		return "tn"
	}
}

// Trends computes metrics for n consecutive windows ending now, oldest
// first. Each period is evaluated over its own [start, end) range.
func (t *PerformanceTracker) Trends(ctx context.Context, periods int, window time.Duration) ([]Metrics, error) {
	if periods <= 0 {
		periods = defaultTrendPeriods
	}
	if window <= 0 {
		window = defaultTrendWindow
	}

	now := t.now()
	out := make([]Metrics, 0, periods)
	for i := periods; i > 0; i-- {
		start := now.Add(-time.Duration(i) * window)
		end := start.Add(window)
		m, err := t.Metrics(ctx, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// Summarize aggregates feedback volume over the metrics window.
func (t *PerformanceTracker) Summarize(ctx context.Context) (*Summary, error) {
	now := t.now()
	entries, err := t.store.ListFeedbackBetween(ctx, now.Add(-defaultMetricsWindow), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	s := &Summary{
		ByType:   map[models.FeedbackType]int{},
		BySource: map[models.FeedbackSource]int{},
	}
	recentCutoff := now.Add(-7 * 24 * time.Hour)
	for _, f := range entries {
		s.ByType[f.Type]++
		s.BySource[f.Source]++
		if !f.CreatedAt.Before(recentCutoff) {
			s.RecentCount++
		}
	}
	s.AveragePerDay = float64(len(entries)) / 30
	return s, nil
}

// Report assembles the full performance report with recommendations.
func (t *PerformanceTracker) Report(ctx context.Context) (*Report, error) {
	now := t.now()

	current, err := t.Metrics(ctx, now.Add(-defaultMetricsWindow), now)
	if err != nil {
		return nil, err
	}
	trends, err := t.Trends(ctx, defaultTrendPeriods, defaultTrendWindow)
	if err != nil {
		return nil, err
	}
	summary, err := t.Summarize(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt:     now,
		Current:         *current,
		Trends:          trends,
		Feedback:        *summary,
		Recommendations: recommendations(current, trends),
	}, nil
}

// recommendations flags quality problems worth operator attention.
func recommendations(current *Metrics, trends []Metrics) []string {
	var out []string
	if current.TotalFeedback == 0 {
		return []string{"insufficient feedback to evaluate performance"}
	}
	if current.Precision < 0.8 {
		out = append(out, "precision below 0.80: review rule thresholds to reduce false positives")
	}
	if current.Recall < 0.8 {
		out = append(out, "recall below 0.80: extend the pattern bank or lower the alert gate")
	}
	if current.FalsePositiveRate > 0.1 {
		out = append(out, "false positive rate above 10%: tighten benign indicators")
	}
	if decliningF1(trends, 3) {
		out = append(out, "F1 declining over the last 3 periods: investigate model or content drift")
	}
	if len(out) == 0 {
		out = append(out, "detection quality within targets")
	}
	return out
}

// decliningF1 reports whether F1 fell across the last n populated periods.
func decliningF1(trends []Metrics, n int) bool {
	var populated []float64
	for _, m := range trends {
		if m.TotalFeedback > 0 {
			populated = append(populated, m.F1)
		}
	}
	if len(populated) < n {
		return false
	}
	tail := populated[len(populated)-n:]
	for i := 1; i < len(tail); i++ {
		if tail[i] >= tail[i-1] {
			return false
		}
	}
	return true
}
