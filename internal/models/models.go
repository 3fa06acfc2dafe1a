// Package models defines the core entities shared across the monitoring
// pipeline: websites, content snapshots, alerts and queue jobs.
package models

import "time"

// Website is a monitored site.
type Website struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Name          string     `json:"name"`
	IsActive      bool       `json:"isActive"`
	CheckInterval string     `json:"checkInterval"` // interval expression, e.g. "*/15 * * * *" or "15m"
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
}

// Snapshot is a single capture of a website's content. Verdict fields are
// written once by the classification worker and immutable afterwards.
type Snapshot struct {
	ID              string     `json:"id"`
	WebsiteID       string     `json:"websiteId"`
	ContentHash     string     `json:"contentHash"`
	ContentText     string     `json:"contentText"`
	RawHTML         []byte     `json:"-"`
	StatusCode      int        `json:"statusCode"`
	ResponseTimeMs  int64      `json:"responseTimeMs"`
	ContentLength   int        `json:"contentLength"`
	ContentType     string     `json:"contentType"`
	VectorRef       string     `json:"vectorRef,omitempty"`
	IsDefaced       *bool      `json:"isDefaced,omitempty"`
	ConfidenceScore *float64   `json:"confidenceScore,omitempty"`
	CapturedAt      time.Time  `json:"capturedAt"`
	AnalyzedAt      *time.Time `json:"analyzedAt,omitempty"`
}

// AlertStatus tracks the operator-facing lifecycle of a stored alert.
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// StoredAlert is the persisted form of a generated alert.
type StoredAlert struct {
	ID                  string      `json:"id"`
	WebsiteID           string      `json:"websiteId"`
	SnapshotID          string      `json:"snapshotId,omitempty"`
	AlertType           string      `json:"alertType"`
	Severity            string      `json:"severity"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	ClassificationLabel string      `json:"classificationLabel,omitempty"`
	ConfidenceScore     float64     `json:"confidenceScore"`
	SimilarityScore     *float64    `json:"similarityScore,omitempty"`
	Status              AlertStatus `json:"status"`
	CreatedAt           time.Time   `json:"createdAt"`
	AcknowledgedAt      *time.Time  `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy      string      `json:"acknowledgedBy,omitempty"`
	ResolvedAt          *time.Time  `json:"resolvedAt,omitempty"`
}

// JobKind distinguishes the two queue-backed job types.
type JobKind string

const (
	JobKindScrape         JobKind = "scrape"
	JobKindClassification JobKind = "classification"
)

// Job is a unit of work on one of the priority queues. Priority 1 is the
// highest, 5 the lowest.
type Job struct {
	ID          string                 `json:"id"`
	Kind        JobKind                `json:"kind"`
	WebsiteID   string                 `json:"websiteId"`
	WebsiteURL  string                 `json:"websiteUrl"`
	WebsiteName string                 `json:"websiteName"`
	SnapshotID  string                 `json:"snapshotId,omitempty"`
	Priority    int                    `json:"priority"`
	RetryCount  int                    `json:"retryCount"`
	MaxRetries  int                    `json:"maxRetries"`
	CreatedAt   time.Time              `json:"createdAt"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// JobExecution records a scheduler-driven run for audit purposes.
type JobExecution struct {
	ID          string     `json:"id"`
	JobID       string     `json:"jobId"`
	WebsiteID   string     `json:"websiteId,omitempty"`
	Status      string     `json:"status"` // running, succeeded, failed
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}
