// Package scheduler dispatches periodic monitoring, health and maintenance
// work to the workflow engine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
)

// WorkflowEngine executes the work the scheduler dispatches.
type WorkflowEngine interface {
	ExecuteMonitoring(ctx context.Context, website *models.Website) error
	ExecuteHealthCheck(ctx context.Context) error
	ExecuteMaintenance(ctx context.Context) error
}

const maintenanceInterval = 24 * time.Hour

type entry struct {
	website  *models.Website
	interval time.Duration
	cancel   context.CancelFunc
}

// Scheduler owns one monitoring loop per scheduled website plus the health
// and maintenance loops.
type Scheduler struct {
	engine WorkflowEngine
	cfg    config.SchedulerConfig

	mu      sync.Mutex
	entries map[string]*entry
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler.
func New(engine WorkflowEngine, cfg config.SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine:  engine,
		cfg:     cfg,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the health and maintenance loops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.healthLoop()
	go s.maintenanceLoop()
	log.Info().
		Dur("healthInterval", s.cfg.HealthCheckInterval).
		Msg("Scheduler started")
}

// Stop cancels all loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

// ScheduleWebsiteMonitoring starts (or restarts) the periodic monitoring
// loop for a website on its check interval.
func (s *Scheduler) ScheduleWebsiteMonitoring(website *models.Website) error {
	interval := s.interval(website)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[website.ID]; ok {
		existing.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{website: website, interval: interval, cancel: cancel}
	s.entries[website.ID] = e

	s.wg.Add(1)
	go s.monitorLoop(ctx, e)

	log.Info().
		Str("websiteID", website.ID).
		Str("url", website.URL).
		Dur("interval", interval).
		Msg("Website monitoring scheduled")
	return nil
}

// UnscheduleWebsiteMonitoring stops the loop for a website.
func (s *Scheduler) UnscheduleWebsiteMonitoring(websiteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[websiteID]
	if !ok {
		return dferrors.New(dferrors.KindNotFound, "scheduler.Unschedule", dferrors.ErrNotFound).WithWebsite(websiteID)
	}
	e.cancel()
	delete(s.entries, websiteID)
	log.Info().Str("websiteID", websiteID).Msg("Website monitoring unscheduled")
	return nil
}

// ExecuteImmediateWorkflow runs one monitoring pass for a website right
// now, outside its schedule.
func (s *Scheduler) ExecuteImmediateWorkflow(ctx context.Context, website *models.Website) error {
	if err := s.engine.ExecuteMonitoring(ctx, website); err != nil {
		return dferrors.New(dferrors.KindCollab, "scheduler.ExecuteImmediate", err).WithWebsite(website.ID)
	}
	return nil
}

// ScheduledWebsites returns the ids currently scheduled.
func (s *Scheduler) ScheduledWebsites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}

func (s *Scheduler) interval(website *models.Website) time.Duration {
	if website.CheckInterval != "" {
		if d, err := time.ParseDuration(website.CheckInterval); err == nil && d > 0 {
			return d
		}
		log.Warn().
			Str("websiteID", website.ID).
			Str("checkInterval", website.CheckInterval).
			Msg("Unparseable check interval, using default")
	}
	return s.cfg.DefaultCheckInterval
}

func (s *Scheduler) monitorLoop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.engine.ExecuteMonitoring(ctx, e.website); err != nil {
				log.Warn().Err(err).
					Str("websiteID", e.website.ID).
					Msg("Monitoring workflow failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) healthLoop() {
	defer s.wg.Done()

	interval := s.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.engine.ExecuteHealthCheck(s.ctx); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) maintenanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.engine.ExecuteMaintenance(s.ctx); err != nil {
				log.Warn().Err(err).Msg("Maintenance job failed")
			}
		case <-s.ctx.Done():
			return
		}
	}
}
