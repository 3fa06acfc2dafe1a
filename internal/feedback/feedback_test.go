package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
)

type memStore struct {
	entries []*models.Feedback
}

func (m *memStore) SaveFeedback(ctx context.Context, f *models.Feedback) error {
	cp := *f
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memStore) ListFeedbackBetween(ctx context.Context, start, end time.Time) ([]*models.Feedback, error) {
	var out []*models.Feedback
	for _, f := range m.entries {
		if !f.CreatedAt.Before(start) && f.CreatedAt.Before(end) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) CountFeedbackSince(ctx context.Context, cutoff time.Time) (int, error) {
	n := 0
	for _, f := range m.entries {
		if !f.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkFeedbackProcessed(ctx context.Context, id string) error {
	now := time.Now()
	for _, f := range m.entries {
		if f.ID == id {
			f.ProcessedAt = &now
		}
	}
	return nil
}

type fakeAccuracy struct {
	value float64
	set   bool
}

func (f *fakeAccuracy) SetHistoricalAccuracy(v float64) {
	f.value = v
	f.set = true
}

func addFeedback(store *memStore, at time.Time, original, corrected models.Classification, ftype models.FeedbackType) {
	store.entries = append(store.entries, &models.Feedback{
		ID:             "f-" + at.Format(time.RFC3339Nano),
		WebsiteID:      "site-1",
		OriginalLabel:  original,
		CorrectedLabel: corrected,
		Type:           ftype,
		Source:         models.SourceHumanAnalyst,
		CreatedAt:      at,
	})
}

func TestCollectorStoresAndProcesses(t *testing.T) {
	store := &memStore{}
	tracker := NewPerformanceTracker(store)
	acc := &fakeAccuracy{}
	c := NewCollector(store, tracker, acc)

	f, err := c.SubmitFalsePositive(context.Background(), Submission{
		WebsiteID:          "site-1",
		AlertID:            "alert-1",
		OriginalLabel:      models.ClassificationDefacement,
		OriginalConfidence: 0.9,
		Reasoning:          "planned redesign",
		AnalystID:          "analyst-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.FeedbackFalsePositive, f.Type)
	assert.Equal(t, models.ClassificationBenign, f.CorrectedLabel)
	assert.NotEmpty(t, f.ID)
	require.Len(t, store.entries, 1)
	assert.NotNil(t, store.entries[0].ProcessedAt)
	assert.True(t, acc.set)
	assert.Equal(t, 0.0, acc.value) // single FP: zero accuracy so far
}

func TestCollectorRejectsMissingWebsite(t *testing.T) {
	c := NewCollector(&memStore{}, NewPerformanceTracker(&memStore{}), nil)

	_, err := c.SubmitCorrection(context.Background(), Submission{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrValidation)
}

func TestMetricsConfusionMatrix(t *testing.T) {
	store := &memStore{}
	now := time.Now()

	// 3 TP, 1 FP, 1 FN, 1 TN
	addFeedback(store, now.Add(-time.Hour), models.ClassificationDefacement, models.ClassificationDefacement, models.FeedbackClassificationCorrection)
	addFeedback(store, now.Add(-2*time.Hour), models.ClassificationDefacement, models.ClassificationDefacement, models.FeedbackManualReview)
	addFeedback(store, now.Add(-3*time.Hour), models.ClassificationDefacement, models.ClassificationDefacement, models.FeedbackAlertFeedback)
	addFeedback(store, now.Add(-4*time.Hour), models.ClassificationDefacement, models.ClassificationBenign, models.FeedbackFalsePositive)
	addFeedback(store, now.Add(-5*time.Hour), models.ClassificationBenign, models.ClassificationDefacement, models.FeedbackFalseNegative)
	addFeedback(store, now.Add(-6*time.Hour), models.ClassificationBenign, models.ClassificationBenign, models.FeedbackClassificationCorrection)

	tracker := NewPerformanceTracker(store)
	m, err := tracker.Metrics(context.Background(), now.Add(-24*time.Hour), now)
	require.NoError(t, err)

	assert.Equal(t, 3, m.TruePositives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 1, m.FalseNegatives)
	assert.Equal(t, 1, m.TrueNegatives)
	assert.InDelta(t, 0.75, m.Precision, 1e-9)
	assert.InDelta(t, 0.75, m.Recall, 1e-9)
	assert.InDelta(t, 0.75, m.F1, 1e-9)
	assert.InDelta(t, 1.0/6, m.FalsePositiveRate, 1e-9)
	assert.InDelta(t, 4.0/6, m.Accuracy, 1e-9)
	assert.Equal(t, 6, m.TotalFeedback)
}

func TestTrendsUsePerPeriodWindows(t *testing.T) {
	store := &memStore{}
	now := time.Now()

	// One TP two periods ago, one FP in the most recent period.
	addFeedback(store, now.Add(-10*24*time.Hour), models.ClassificationDefacement, models.ClassificationDefacement, models.FeedbackClassificationCorrection)
	addFeedback(store, now.Add(-2*24*time.Hour), models.ClassificationDefacement, models.ClassificationBenign, models.FeedbackFalsePositive)

	tracker := NewPerformanceTracker(store)
	tracker.now = func() time.Time { return now }

	trends, err := tracker.Trends(context.Background(), 3, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, trends, 3)

	// Chronological order: oldest window first and empty.
	assert.Equal(t, 0, trends[0].TotalFeedback)
	assert.Equal(t, 1, trends[1].TruePositives)
	assert.Equal(t, 1, trends[2].FalsePositives)
	assert.True(t, trends[0].WindowStart.Before(trends[1].WindowStart))
	assert.Equal(t, trends[1].WindowEnd, trends[2].WindowStart)
}

func TestRetrainingSignalThreshold(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	for i := 0; i < 9; i++ {
		addFeedback(store, now.Add(-time.Duration(i)*time.Hour),
			models.ClassificationDefacement, models.ClassificationDefacement,
			models.FeedbackClassificationCorrection)
	}

	c := NewCollector(store, NewPerformanceTracker(store), nil)
	// The tenth submission crosses the threshold; observable via the count.
	_, err := c.SubmitCorrection(context.Background(), Submission{
		WebsiteID:     "site-1",
		OriginalLabel: models.ClassificationDefacement,
	})
	require.NoError(t, err)

	n, err := store.CountFeedbackSince(context.Background(), now.Add(-retrainWindow))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, retrainMinFeedback)
}

func TestReportRecommendations(t *testing.T) {
	store := &memStore{}
	now := time.Now()

	// Mostly false positives: precision and fp-rate recommendations fire.
	for i := 0; i < 4; i++ {
		addFeedback(store, now.Add(-time.Duration(i+1)*time.Hour),
			models.ClassificationDefacement, models.ClassificationBenign,
			models.FeedbackFalsePositive)
	}
	addFeedback(store, now.Add(-5*time.Hour),
		models.ClassificationDefacement, models.ClassificationDefacement,
		models.FeedbackClassificationCorrection)

	tracker := NewPerformanceTracker(store)
	tracker.now = func() time.Time { return now }

	report, err := tracker.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Current.TotalFeedback)
	assert.Contains(t, report.Recommendations[0], "precision below 0.80")

	var hasFPRate bool
	for _, r := range report.Recommendations {
		if r == "false positive rate above 10%: tighten benign indicators" {
			hasFPRate = true
		}
	}
	assert.True(t, hasFPRate)

	assert.Equal(t, 5, report.Feedback.ByType[models.FeedbackFalsePositive]+
		report.Feedback.ByType[models.FeedbackClassificationCorrection])
	assert.Equal(t, 5, report.Feedback.RecentCount)
}

func TestReportEmptyFeedback(t *testing.T) {
	tracker := NewPerformanceTracker(&memStore{})
	report, err := tracker.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"insufficient feedback to evaluate performance"}, report.Recommendations)
}
