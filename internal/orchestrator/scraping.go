package orchestrator

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/scraper"
)

// Job priorities. 1 is the most urgent, 5 the least.
const (
	PriorityUrgent = 1
	PriorityHigh   = 2
	PriorityNormal = 3
	PriorityLow    = 4
	PriorityRetry  = 5
)

const defaultMaxRetries = 3

// Scraper runs one capture end to end.
type Scraper interface {
	Scrape(ctx context.Context, website *models.Website) (*scraper.Outcome, error)
}

// WebsiteToucher records when a website was last checked.
type WebsiteToucher interface {
	TouchWebsite(ctx context.Context, id string, checkedAt time.Time) error
}

// classificationEnqueuer hands changed captures to the classification pool.
type classificationEnqueuer interface {
	EnqueueOutcome(website *models.Website, outcome *scraper.Outcome) (*models.Job, error)
}

// ScrapingOrchestrator drains the scrape queue: capture, change detection,
// and hand-off to classification when content changed.
type ScrapingOrchestrator struct {
	*Pool
	scraper  Scraper
	websites WebsiteToucher
	next     classificationEnqueuer
}

// NewScrapingOrchestrator builds the scraping pool. next may be nil, in
// which case changed captures are logged but not classified.
func NewScrapingOrchestrator(maxWorkers, maxQueueSize int, svc Scraper, websites WebsiteToucher, next classificationEnqueuer, recorder ExecutionRecorder) *ScrapingOrchestrator {
	o := &ScrapingOrchestrator{
		scraper:  svc,
		websites: websites,
		next:     next,
	}
	o.Pool = NewPool("scraping", maxWorkers, maxQueueSize, o, recorder)
	return o
}

// EnqueueScrape submits a scrape job for a website.
func (o *ScrapingOrchestrator) EnqueueScrape(website *models.Website, priority int) (*models.Job, error) {
	job := &models.Job{
		ID:          ulid.Make().String(),
		Kind:        models.JobKindScrape,
		WebsiteID:   website.ID,
		WebsiteURL:  website.URL,
		WebsiteName: website.Name,
		Priority:    priority,
		MaxRetries:  defaultMaxRetries,
		CreatedAt:   time.Now(),
	}
	if err := o.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Process runs one scrape job. A failed capture is re-enqueued at lower
// priority until its retries are exhausted.
func (o *ScrapingOrchestrator) Process(ctx context.Context, job *models.Job) error {
	website := &models.Website{
		ID:   job.WebsiteID,
		URL:  job.WebsiteURL,
		Name: job.WebsiteName,
	}

	outcome, err := o.scraper.Scrape(ctx, website)
	if err != nil {
		o.maybeRetry(job, err)
		return err
	}

	if touchErr := o.websites.TouchWebsite(ctx, website.ID, time.Now()); touchErr != nil {
		log.Warn().Err(touchErr).
			Str("websiteID", website.ID).
			Msg("Failed to record check time")
	}

	if !outcome.NeedsClassification {
		log.Debug().
			Str("websiteID", website.ID).
			Str("snapshotID", outcome.Snapshot.ID).
			Msg("No classification needed")
		return nil
	}

	if o.next == nil {
		log.Warn().
			Str("websiteID", website.ID).
			Msg("Content changed but no classification pool is wired")
		return nil
	}
	if _, err := o.next.EnqueueOutcome(website, outcome); err != nil {
		return err
	}
	return nil
}

// maybeRetry re-enqueues a failed scrape at one priority level lower. The
// retry keeps the original job id so its history stays traceable.
func (o *ScrapingOrchestrator) maybeRetry(job *models.Job, cause error) {
	if job.RetryCount >= job.MaxRetries {
		log.Warn().Err(cause).
			Str("jobID", job.ID).
			Str("websiteID", job.WebsiteID).
			Int("retries", job.RetryCount).
			Msg("Scrape retries exhausted")
		return
	}

	retry := *job
	retry.RetryCount++
	retry.Priority = job.Priority + 1
	if retry.Priority > PriorityRetry {
		retry.Priority = PriorityRetry
	}
	retry.CreatedAt = time.Now()
	retry.StartedAt = nil
	retry.CompletedAt = nil

	if err := o.Enqueue(&retry); err != nil {
		log.Warn().Err(err).
			Str("jobID", job.ID).
			Msg("Failed to re-enqueue scrape retry")
		return
	}
	log.Info().
		Str("jobID", job.ID).
		Str("websiteID", job.WebsiteID).
		Int("attempt", retry.RetryCount).
		Int("priority", retry.Priority).
		Msg("Scrape re-enqueued for retry")
}
