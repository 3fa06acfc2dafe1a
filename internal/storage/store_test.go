package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testWebsite(t *testing.T, s *Store) *models.Website {
	t.Helper()
	w := &models.Website{
		ID:            uuid.New().String(),
		URL:           "https://example.com",
		Name:          "Example",
		IsActive:      true,
		CheckInterval: "15m",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, s.CreateWebsite(context.Background(), w))
	return w
}

func TestWebsiteRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	w := testWebsite(t, s)

	got, err := s.GetWebsite(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.URL, got.URL)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.LastCheckedAt)

	active, err := s.ListActiveWebsites(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, s.SetWebsiteActive(ctx, w.ID, false))
	active, err = s.ListActiveWebsites(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	checked := time.Now()
	require.NoError(t, s.TouchWebsite(ctx, w.ID, checked))
	got, err = s.GetWebsite(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastCheckedAt)
}

func TestGetWebsiteNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetWebsite(context.Background(), "missing")
	assert.True(t, dferrors.IsNotFound(err))
}

func TestSnapshotVerdictWrittenOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	w := testWebsite(t, s)

	snap := &models.Snapshot{
		ID:          uuid.New().String(),
		WebsiteID:   w.ID,
		ContentHash: "abc",
		ContentText: "hello",
		CapturedAt:  time.Now(),
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	require.NoError(t, s.UpdateSnapshotVerdict(ctx, snap.ID, true, 0.95))

	got, err := s.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	require.NotNil(t, got.IsDefaced)
	assert.True(t, *got.IsDefaced)
	assert.InDelta(t, 0.95, *got.ConfidenceScore, 1e-9)
	require.NotNil(t, got.AnalyzedAt)

	// A second verdict is ignored.
	require.NoError(t, s.UpdateSnapshotVerdict(ctx, snap.ID, false, 0.1))
	got, err = s.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, *got.IsDefaced)
	assert.InDelta(t, 0.95, *got.ConfidenceScore, 1e-9)
}

func TestLatestAnalyzedSnapshot(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	w := testWebsite(t, s)

	old := &models.Snapshot{
		ID: uuid.New().String(), WebsiteID: w.ID, ContentHash: "a",
		CapturedAt: time.Now().Add(-2 * time.Hour),
	}
	current := &models.Snapshot{
		ID: uuid.New().String(), WebsiteID: w.ID, ContentHash: "b",
		CapturedAt: time.Now(),
	}
	require.NoError(t, s.SaveSnapshot(ctx, old))
	require.NoError(t, s.SaveSnapshot(ctx, current))
	require.NoError(t, s.UpdateSnapshotVerdict(ctx, old.ID, false, 0.2))

	got, err := s.LatestAnalyzedSnapshot(ctx, w.ID, current.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)

	latest, err := s.LatestSnapshot(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, current.ID, latest.ID)
}

func TestAlertLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	w := testWebsite(t, s)

	alert := &models.StoredAlert{
		ID:              uuid.New().String(),
		WebsiteID:       w.ID,
		AlertType:       "DEFACEMENT_DETECTED",
		Severity:        "CRITICAL",
		Title:           "Defacement detected on Example",
		ConfidenceScore: 0.95,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, s.SaveAlert(ctx, alert))

	open, err := s.ListOpenAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertStatusOpen, open[0].Status)

	require.NoError(t, s.AcknowledgeAlert(ctx, alert.ID, "analyst-1"))
	open, err = s.ListOpenAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Acknowledging twice fails: the alert left the open state.
	err = s.AcknowledgeAlert(ctx, alert.ID, "analyst-2")
	assert.True(t, dferrors.IsNotFound(err))

	require.NoError(t, s.ResolveAlert(ctx, alert.ID))
	err = s.ResolveAlert(ctx, alert.ID)
	assert.True(t, dferrors.IsNotFound(err))
}

func TestFeedbackRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	w := testWebsite(t, s)

	f := &models.Feedback{
		ID:                 uuid.New().String(),
		WebsiteID:          w.ID,
		OriginalLabel:      models.ClassificationDefacement,
		OriginalConfidence: 0.9,
		Type:               models.FeedbackFalsePositive,
		Source:             models.SourceHumanAnalyst,
		CorrectedLabel:     models.ClassificationBenign,
		Reasoning:          "planned redesign",
		AnalystID:          "analyst-1",
		Metadata:           map[string]interface{}{"channel": "#security"},
		CreatedAt:          time.Now(),
	}
	require.NoError(t, s.SaveFeedback(ctx, f))

	list, err := s.ListFeedbackBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.FeedbackFalsePositive, list[0].Type)
	assert.Equal(t, models.ClassificationBenign, list[0].CorrectedLabel)
	assert.Equal(t, "#security", list[0].Metadata["channel"])
	assert.Nil(t, list[0].ProcessedAt)

	n, err := s.CountFeedbackSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.MarkFeedbackProcessed(ctx, f.ID))
	list, err = s.ListFeedbackBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, list[0].ProcessedAt)
}

func TestVectorStoreSearch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	vs := s.Vectors()

	up := func(websiteID, snapshotID string, vec []float32, label string) {
		require.NoError(t, vs.Upsert(ctx, &vectorizer.ContentVector{
			WebsiteID:   websiteID,
			SnapshotID:  snapshotID,
			ContentType: vectorizer.ContentTypeMain,
			Vector:      vec,
			Dimension:   len(vec),
		}, map[string]interface{}{"classification": label}))
	}

	up("site-1", "snap-1", []float32{1, 0, 0}, "benign")
	up("site-1", "snap-2", []float32{0.9, 0.1, 0}, "benign")
	up("site-1", "snap-3", []float32{0, 1, 0}, "defacement")
	up("site-2", "snap-4", []float32{1, 0, 0}, "benign")

	results, err := vs.Search(ctx, []float32{1, 0, 0},
		vectorizer.SearchScope{WebsiteID: "site-1"}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "snap-1", results[0].SnapshotID)
	assert.Equal(t, "benign", results[0].Payload["classification"])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	// Upsert replaces in place.
	up("site-1", "snap-1", []float32{0, 0, 1}, "unclear")
	results, err = vs.Search(ctx, []float32{0, 0, 1},
		vectorizer.SearchScope{WebsiteID: "site-1"}, 1, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "unclear", results[0].Payload["classification"])
}
