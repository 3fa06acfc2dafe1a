package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/feedback"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/scheduler"
)

// DetectionReporter summarizes detection quality from analyst feedback.
type DetectionReporter interface {
	Report(ctx context.Context) (*feedback.Report, error)
}

// SystemReport is the combined operational and detection-quality picture.
type SystemReport struct {
	Scraping       PoolStats               `json:"scraping"`
	Classification PoolStats               `json:"classification"`
	Detection      *feedback.Report        `json:"detection,omitempty"`
	System         *scheduler.SystemHealth `json:"system"`
	Health         Health                  `json:"health"`
	GeneratedAt    time.Time               `json:"generatedAt"`
}

// Engine implements the scheduler's workflow surface on top of the two
// worker pools.
type Engine struct {
	scraping       *ScrapingOrchestrator
	classification *ClassificationOrchestrator
	reporter       DetectionReporter
}

// NewEngine wires the pools behind the scheduler. reporter may be nil.
func NewEngine(scraping *ScrapingOrchestrator, classification *ClassificationOrchestrator, reporter DetectionReporter) *Engine {
	return &Engine{
		scraping:       scraping,
		classification: classification,
		reporter:       reporter,
	}
}

// Start spins up both pools.
func (e *Engine) Start() {
	e.scraping.Setup()
	e.classification.Setup()
}

// Stop drains both pools within the given context.
func (e *Engine) Stop(ctx context.Context) {
	e.scraping.Cleanup(ctx)
	e.classification.Cleanup(ctx)
}

// ExecuteMonitoring enqueues a scheduled scrape for a website.
func (e *Engine) ExecuteMonitoring(ctx context.Context, website *models.Website) error {
	_, err := e.scraping.EnqueueScrape(website, PriorityNormal)
	return err
}

// ExecuteHealthCheck combines host readings with pool health and raises a
// fatal error only when the orchestrators themselves are down.
func (e *Engine) ExecuteHealthCheck(ctx context.Context) error {
	health := e.Health()
	system := scheduler.ProbeSystemHealth()

	if !system.Healthy {
		health.ComponentsHealthy = false
		health.Issues = append(health.Issues, system.Issues...)
	}

	if len(health.Issues) > 0 {
		log.Warn().
			Strs("issues", health.Issues).
			Bool("running", health.Running).
			Msg("Health check found issues")
	} else {
		log.Debug().Msg("Health check passed")
	}

	if !health.Running {
		return dferrors.New(dferrors.KindFatal, "engine.HealthCheck", dferrors.ErrFatal)
	}
	return nil
}

// ExecuteMaintenance logs the periodic system report.
func (e *Engine) ExecuteMaintenance(ctx context.Context) error {
	report, err := e.SystemReport(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("scrapeQueue", report.Scraping.Queue.PendingJobs).
		Int("classifyQueue", report.Classification.Queue.PendingJobs).
		Int("scraped", report.Scraping.TotalProcessed).
		Int("classified", report.Classification.TotalProcessed).
		Float64("scrapeSuccessRate", report.Scraping.SuccessRate).
		Float64("classifySuccessRate", report.Classification.SuccessRate).
		Msg("Maintenance report")

	if report.Detection != nil {
		log.Info().
			Float64("precision", report.Detection.Current.Precision).
			Float64("recall", report.Detection.Current.Recall).
			Float64("f1", report.Detection.Current.F1).
			Str("recommendations", strings.Join(report.Detection.Recommendations, "; ")).
			Msg("Detection quality report")
	}
	return nil
}

// Health merges both pools' health into one view.
func (e *Engine) Health() Health {
	s := e.scraping.Pool.Health()
	c := e.classification.Pool.Health()

	return Health{
		Running:           s.Running && c.Running,
		WorkersHealthy:    s.WorkersHealthy && c.WorkersHealthy,
		QueueHealthy:      s.QueueHealthy && c.QueueHealthy,
		ComponentsHealthy: s.ComponentsHealthy && c.ComponentsHealthy,
		Issues:            append(append([]string(nil), s.Issues...), c.Issues...),
	}
}

// SystemReport assembles pool stats, host health and, when a reporter is
// wired, the detection-quality report.
func (e *Engine) SystemReport(ctx context.Context) (*SystemReport, error) {
	report := &SystemReport{
		Scraping:       e.scraping.Stats(),
		Classification: e.classification.Stats(),
		System:         scheduler.ProbeSystemHealth(),
		Health:         e.Health(),
		GeneratedAt:    time.Now(),
	}
	if e.reporter != nil {
		detection, err := e.reporter.Report(ctx)
		if err != nil {
			return nil, dferrors.New(dferrors.KindCollab, "engine.SystemReport", err)
		}
		report.Detection = detection
	}
	return report, nil
}
