package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/alerting"
	"github.com/defacewatch/defacewatch/internal/classifier"
	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/notifications"
	"github.com/defacewatch/defacewatch/internal/scraper"
	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

// maxTextBlocks bounds how many text blocks feed a single classification
// on each side of the diff.
const maxTextBlocks = 5

// ClassificationStore is the persistence surface classification jobs need.
type ClassificationStore interface {
	LatestAnalyzedSnapshot(ctx context.Context, websiteID, excludeID string) (*models.Snapshot, error)
	UpdateSnapshotVerdict(ctx context.Context, snapshotID string, isDefaced bool, confidence float64) error
	SaveAlert(ctx context.Context, a *models.StoredAlert) error
}

// Pipeline runs the full multi-stage classification.
type Pipeline interface {
	Classify(ctx context.Context, req classifier.ClassificationRequest) *classifier.PipelineResult
}

// AlertGenerator gates and scores pipeline results into alerts.
type AlertGenerator interface {
	Generate(result *classifier.PipelineResult, alertCtx alerting.AlertContext) *alerting.Alert
}

// NotificationRouter fans alerts out to templates and channels.
type NotificationRouter interface {
	Route(ctx context.Context, alert *alerting.Alert, extraChannels, extraUsers []string) (*notifications.RouteResult, error)
}

// Embedder persists content vectors for later similarity lookups.
type Embedder interface {
	Embed(ctx context.Context, text, contentType string, metadata map[string]interface{}) (*vectorizer.ContentVector, error)
	Persist(ctx context.Context, v *vectorizer.ContentVector, payload map[string]interface{}) error
}

// classificationPayload travels with a job on the in-process queue.
type classificationPayload struct {
	website *models.Website
	outcome *scraper.Outcome
}

// ClassificationOrchestrator drains the classification queue: pipeline run,
// vector persistence, verdict write and alert fan-out.
type ClassificationOrchestrator struct {
	*Pool
	pipeline  Pipeline
	generator AlertGenerator
	router    NotificationRouter
	embedder  Embedder
	store     ClassificationStore
	notify    config.NotificationConfig
}

// NewClassificationOrchestrator builds the classification pool. router and
// embedder may be nil; those stages are then skipped.
func NewClassificationOrchestrator(maxWorkers, maxQueueSize int, pipeline Pipeline, generator AlertGenerator, router NotificationRouter, embedder Embedder, store ClassificationStore, notify config.NotificationConfig, recorder ExecutionRecorder) *ClassificationOrchestrator {
	o := &ClassificationOrchestrator{
		pipeline:  pipeline,
		generator: generator,
		router:    router,
		embedder:  embedder,
		store:     store,
		notify:    notify,
	}
	o.Pool = NewPool("classification", maxWorkers, maxQueueSize, o, recorder)
	return o
}

// EnqueueOutcome submits a changed capture for classification. Wholesale
// content replacement jumps the queue.
func (o *ClassificationOrchestrator) EnqueueOutcome(website *models.Website, outcome *scraper.Outcome) (*models.Job, error) {
	priority := PriorityHigh
	if outcome.Changes != nil && outcome.Changes.ContentReplacement {
		priority = PriorityUrgent
	}

	job := &models.Job{
		ID:          ulid.Make().String(),
		Kind:        models.JobKindClassification,
		WebsiteID:   website.ID,
		WebsiteURL:  website.URL,
		WebsiteName: website.Name,
		SnapshotID:  outcome.Snapshot.ID,
		Priority:    priority,
		MaxRetries:  defaultMaxRetries,
		CreatedAt:   time.Now(),
		Metadata: map[string]interface{}{
			"payload": &classificationPayload{website: website, outcome: outcome},
		},
	}
	if err := o.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Process classifies one capture: build the request, run the pipeline,
// persist vectors and the verdict, then alert and notify. Vector and alert
// persistence are best effort; the verdict write is not.
func (o *ClassificationOrchestrator) Process(ctx context.Context, job *models.Job) error {
	payload, ok := job.Metadata["payload"].(*classificationPayload)
	if !ok || payload.outcome == nil || payload.website == nil {
		return dferrors.Validation("classification.Process", errors.New("job is missing its classification payload")).WithWebsite(job.WebsiteID)
	}
	website, outcome := payload.website, payload.outcome

	req := o.buildRequest(ctx, website, outcome)
	result := o.pipeline.Classify(ctx, req)

	o.persistVectors(ctx, website, outcome, result)

	alertCtx := buildAlertContext(website, outcome, req.Prior)
	if alert := o.generator.Generate(result, alertCtx); alert != nil {
		o.dispatchAlert(ctx, alert)
		o.addAlerts(job.ID, 1)
	}

	isDefaced := result.FinalClassification == models.ClassificationDefacement
	if err := o.store.UpdateSnapshotVerdict(ctx, outcome.Snapshot.ID, isDefaced, result.ConfidenceScore); err != nil {
		return dferrors.New(dferrors.KindCollab, "classification.UpdateVerdict", err).WithWebsite(website.ID)
	}

	log.Info().
		Str("websiteID", website.ID).
		Str("snapshotID", outcome.Snapshot.ID).
		Str("label", string(result.FinalClassification)).
		Float64("confidence", result.ConfidenceScore).
		Msg("Classification complete")
	return nil
}

// buildRequest assembles the pipeline input from a scrape outcome and the
// previous verdict, when one exists.
func (o *ClassificationOrchestrator) buildRequest(ctx context.Context, website *models.Website, outcome *scraper.Outcome) classifier.ClassificationRequest {
	req := classifier.ClassificationRequest{
		SiteURL:           website.URL,
		SiteContext:       map[string]interface{}{"site_name": website.Name},
		CurrentContent:    contentSet(outcome.Content),
		BaselineContent:   contentSet(outcome.BaselineContent),
		ExternalResources: outcome.Content.ExternalResources,
		CurrentStructure: classifier.StructureSummary{
			ElementCount:   outcome.Content.ElementCount,
			ResponseTimeMs: outcome.Snapshot.ResponseTimeMs,
		},
	}

	if outcome.Changes != nil {
		req.ChangedContent = outcome.Changes.ChangedContent
		req.CurrentStructure.ContentSimilarity = outcome.Changes.ContentSimilarity
		req.SiteContext["change_summary"] = outcome.Changes.Summary
		if outcome.Changes.ContentReplacement {
			req.SiteContext["visual_change"] = true
		}
	}
	if outcome.BaselineContent != nil {
		req.BaselineStructure = &classifier.StructureSummary{
			ElementCount:      outcome.BaselineContent.ElementCount,
			ContentSimilarity: 1.0,
		}
		req.StaticContext = limitBlocks(outcome.BaselineContent.TextBlocks)
	}
	if req.CurrentContent != nil {
		req.CurrentContent.TextBlocks = limitBlocks(req.CurrentContent.TextBlocks)
	}
	if req.BaselineContent != nil {
		req.BaselineContent.TextBlocks = limitBlocks(req.BaselineContent.TextBlocks)
	}

	req.Prior = o.priorVerdict(ctx, website.ID, outcome.Snapshot.ID)
	return req
}

// priorVerdict reconstructs the last written classification for the site.
func (o *ClassificationOrchestrator) priorVerdict(ctx context.Context, websiteID, excludeID string) *ai.ClassificationResult {
	previous, err := o.store.LatestAnalyzedSnapshot(ctx, websiteID, excludeID)
	if err != nil {
		if !dferrors.IsNotFound(err) {
			log.Warn().Err(err).
				Str("websiteID", websiteID).
				Msg("Failed to load previous verdict")
		}
		return nil
	}
	if previous.IsDefaced == nil {
		return nil
	}

	label := models.ClassificationBenign
	if *previous.IsDefaced {
		label = models.ClassificationDefacement
	}
	prior := &ai.ClassificationResult{Label: label, Timestamp: previous.CapturedAt}
	if previous.ConfidenceScore != nil {
		prior.Confidence = *previous.ConfidenceScore
	}
	return prior
}

// persistVectors embeds the captured main content for later similarity
// lookups. Failures are logged, never fatal to the job.
func (o *ClassificationOrchestrator) persistVectors(ctx context.Context, website *models.Website, outcome *scraper.Outcome, result *classifier.PipelineResult) {
	if o.embedder == nil {
		return
	}

	cv, err := o.embedder.Embed(ctx, outcome.Content.MainContent, vectorizer.ContentTypeMain, map[string]interface{}{
		"title": outcome.Content.Title,
	})
	if err != nil {
		log.Warn().Err(err).
			Str("websiteID", website.ID).
			Msg("Failed to embed snapshot content")
		return
	}
	cv.WebsiteID = website.ID
	cv.SnapshotID = outcome.Snapshot.ID

	payload := map[string]interface{}{
		"label":      string(result.FinalClassification),
		"confidence": result.ConfidenceScore,
	}
	if err := o.embedder.Persist(ctx, cv, payload); err != nil {
		log.Warn().Err(err).
			Str("websiteID", website.ID).
			Str("snapshotID", outcome.Snapshot.ID).
			Msg("Failed to persist content vector")
	}
}

// dispatchAlert stores an alert and routes notifications, both best effort.
func (o *ClassificationOrchestrator) dispatchAlert(ctx context.Context, alert *alerting.Alert) {
	stored := &models.StoredAlert{
		ID:                  alert.ID,
		WebsiteID:           alert.Context.WebsiteID,
		SnapshotID:          alert.Context.SnapshotID,
		AlertType:           string(alert.Type),
		Severity:            string(alert.Severity),
		Title:               alert.Title,
		Description:         alert.Description,
		ClassificationLabel: string(alert.ClassificationLabel),
		ConfidenceScore:     alert.ConfidenceScore,
		SimilarityScore:     alert.SimilarityScore,
		Status:              models.AlertStatusOpen,
		CreatedAt:           alert.CreatedAt,
	}
	if err := o.store.SaveAlert(ctx, stored); err != nil {
		log.Warn().Err(err).
			Str("alertID", alert.ID).
			Msg("Failed to store alert")
	}

	if o.router == nil {
		return
	}
	if _, err := o.router.Route(ctx, alert, o.notify.DefaultChannels, o.notify.DefaultUsers); err != nil {
		log.Warn().Err(err).
			Str("alertID", alert.ID).
			Msg("Notification routing failed")
	}
}

// buildAlertContext maps a scrape outcome onto alert gating inputs.
func buildAlertContext(website *models.Website, outcome *scraper.Outcome, prior *ai.ClassificationResult) alerting.AlertContext {
	alertCtx := alerting.AlertContext{
		WebsiteID:   website.ID,
		WebsiteName: website.Name,
		WebsiteURL:  website.URL,
		SnapshotID:  outcome.Snapshot.ID,
	}
	if outcome.Changes != nil {
		alertCtx.Changes = alerting.ChangeDetails{
			ChangeCount:        outcome.Changes.ChangeCount,
			ChangedSections:    outcome.Changes.ChangedSections,
			NewExternalLinks:   outcome.Changes.NewExternalLinks,
			ContentReplacement: outcome.Changes.ContentReplacement,
			Summary:            outcome.Changes.Summary,
		}
		alertCtx.Visual = alerting.VisualChanges{
			HasSignificantChange: outcome.Changes.ContentReplacement,
			DiffRatio:            1 - outcome.Changes.ContentSimilarity,
		}
		alertCtx.Historical.SimilarityToBaseline = outcome.Changes.ContentSimilarity
	}
	if prior != nil {
		alertCtx.Historical.PreviousClassification = string(prior.Label)
		alertCtx.Historical.IsAnomalous = prior.Label == models.ClassificationDefacement
	}
	return alertCtx
}

// contentSet converts extracted content into the vectorizer's shape.
func contentSet(c *scraper.ExtractedContent) *vectorizer.ContentSet {
	if c == nil {
		return nil
	}
	return &vectorizer.ContentSet{
		MainContent:     c.MainContent,
		Title:           c.Title,
		TextBlocks:      append([]string(nil), c.TextBlocks...),
		MetaDescription: c.MetaDescription,
	}
}

func limitBlocks(blocks []string) []string {
	if len(blocks) <= maxTextBlocks {
		return blocks
	}
	return blocks[:maxTextBlocks]
}
