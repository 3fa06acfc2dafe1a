// Package feedback records analyst judgments about past classifications and
// tracks detection performance over time.
package feedback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/metrics"
	"github.com/defacewatch/defacewatch/internal/models"
)

// retrainMinFeedback is how many feedback records in the trailing window
// raise a retraining signal.
const (
	retrainMinFeedback = 10
	retrainWindow      = 7 * 24 * time.Hour
)

// Store is the persistence surface the collector needs.
type Store interface {
	SaveFeedback(ctx context.Context, f *models.Feedback) error
	ListFeedbackBetween(ctx context.Context, start, end time.Time) ([]*models.Feedback, error)
	CountFeedbackSince(ctx context.Context, cutoff time.Time) (int, error)
	MarkFeedbackProcessed(ctx context.Context, id string) error
}

// AccuracyKeeper receives the rolling accuracy baseline derived from
// feedback.
type AccuracyKeeper interface {
	SetHistoricalAccuracy(v float64)
}

// Submission is the caller-facing shape of one feedback entry.
type Submission struct {
	WebsiteID           string
	SnapshotID          string
	AlertID             string
	OriginalLabel       models.Classification
	OriginalConfidence  float64
	CorrectedLabel      models.Classification
	CorrectedConfidence *float64
	Reasoning           string
	AnalystID           string
	Metadata            map[string]interface{}
}

// Collector stores feedback and keeps the performance baseline current.
type Collector struct {
	store    Store
	tracker  *PerformanceTracker
	accuracy AccuracyKeeper
	now      func() time.Time
}

// NewCollector wires the collector. The accuracy keeper may be nil.
func NewCollector(store Store, tracker *PerformanceTracker, accuracy AccuracyKeeper) *Collector {
	return &Collector{store: store, tracker: tracker, accuracy: accuracy, now: time.Now}
}

// SubmitCorrection records an analyst relabeling a classification.
func (c *Collector) SubmitCorrection(ctx context.Context, sub Submission) (*models.Feedback, error) {
	return c.submit(ctx, models.FeedbackClassificationCorrection, models.SourceHumanAnalyst, sub)
}

// SubmitFalsePositive records that an alert fired on benign content.
func (c *Collector) SubmitFalsePositive(ctx context.Context, sub Submission) (*models.Feedback, error) {
	sub.CorrectedLabel = models.ClassificationBenign
	return c.submit(ctx, models.FeedbackFalsePositive, models.SourceHumanAnalyst, sub)
}

// SubmitFalseNegative records a defacement the system missed.
func (c *Collector) SubmitFalseNegative(ctx context.Context, sub Submission) (*models.Feedback, error) {
	sub.CorrectedLabel = models.ClassificationDefacement
	return c.submit(ctx, models.FeedbackFalseNegative, models.SourceHumanAnalyst, sub)
}

// SubmitChatFeedback records feedback arriving through the chat surface.
func (c *Collector) SubmitChatFeedback(ctx context.Context, sub Submission) (*models.Feedback, error) {
	return c.submit(ctx, models.FeedbackAlertFeedback, models.SourceChatInteraction, sub)
}

func (c *Collector) submit(ctx context.Context, ftype models.FeedbackType, source models.FeedbackSource, sub Submission) (*models.Feedback, error) {
	if sub.WebsiteID == "" {
		return nil, dferrors.Validation("feedback.Submit", dferrors.ErrValidation)
	}

	f := &models.Feedback{
		ID:                  uuid.New().String(),
		WebsiteID:           sub.WebsiteID,
		SnapshotID:          sub.SnapshotID,
		AlertID:             sub.AlertID,
		OriginalLabel:       sub.OriginalLabel,
		OriginalConfidence:  sub.OriginalConfidence,
		Type:                ftype,
		Source:              source,
		CorrectedLabel:      sub.CorrectedLabel,
		CorrectedConfidence: sub.CorrectedConfidence,
		Reasoning:           sub.Reasoning,
		AnalystID:           sub.AnalystID,
		Metadata:            sub.Metadata,
		CreatedAt:           c.now(),
	}
	if err := c.store.SaveFeedback(ctx, f); err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "feedback.Submit", err).WithWebsite(sub.WebsiteID)
	}
	metrics.FeedbackSubmittedTotal.WithLabelValues(string(ftype), string(source)).Inc()

	c.process(ctx, f)
	return f, nil
}

// process updates rolling accuracy and checks the retraining threshold.
// Failures here never surface to the submitter; the record is already
// stored.
func (c *Collector) process(ctx context.Context, f *models.Feedback) {
	now := c.now()

	if c.accuracy != nil {
		m, err := c.tracker.Metrics(ctx, now.Add(-defaultMetricsWindow), now)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to recompute performance metrics")
		} else if m.TotalFeedback > 0 {
			c.accuracy.SetHistoricalAccuracy(m.Accuracy)
		}
	}

	count, err := c.store.CountFeedbackSince(ctx, now.Add(-retrainWindow))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count recent feedback")
	} else if count >= retrainMinFeedback {
		metrics.RetrainingSignalsTotal.Inc()
		log.Info().
			Int("recentFeedback", count).
			Msg("Retraining signal raised by feedback volume")
	}

	if err := c.store.MarkFeedbackProcessed(ctx, f.ID); err != nil {
		log.Warn().Err(err).Str("feedbackID", f.ID).Msg("Failed to mark feedback processed")
	}
}
