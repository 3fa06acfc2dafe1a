// Package orchestrator runs the scraping and classification worker pools
// over bounded priority queues and wires the pipeline to alerting and
// notification delivery.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/metrics"
	"github.com/defacewatch/defacewatch/internal/models"
	"github.com/defacewatch/defacewatch/internal/queue"
)

// getJobTimeout is how long a worker waits for a job before re-checking
// its stop signal.
const getJobTimeout = 5 * time.Second

// panicPause is how long a worker sleeps after recovering from a panic
// before resuming its loop.
const panicPause = time.Second

// Processor does the actual work for one pool.
type Processor interface {
	Process(ctx context.Context, job *models.Job) error
}

// ExecutionRecorder persists job execution audit records. Optional.
type ExecutionRecorder interface {
	RecordJobStart(ctx context.Context, e *models.JobExecution) error
	RecordJobEnd(ctx context.Context, id, status, errMsg string) error
}

// WorkerStats is one worker's counters, snapshotted under its lock.
type WorkerStats struct {
	ID              int        `json:"id"`
	Processed       int        `json:"processed"`
	Succeeded       int        `json:"succeeded"`
	Failed          int        `json:"failed"`
	AlertsGenerated int        `json:"alertsGenerated"`
	CurrentJobID    string     `json:"currentJobId,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	LastJobAt       *time.Time `json:"lastJobAt,omitempty"`
}

type worker struct {
	mu    sync.Mutex
	stats WorkerStats
}

func (w *worker) snapshot() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// PoolStats aggregates a pool's queue and worker state.
type PoolStats struct {
	Queue             queue.Stats   `json:"queue"`
	Workers           []WorkerStats `json:"workers"`
	TotalProcessed    int           `json:"totalProcessed"`
	TotalSucceeded    int           `json:"totalSucceeded"`
	TotalFailed       int           `json:"totalFailed"`
	SuccessRate       float64       `json:"successRate"`
	ThroughputPerHour float64       `json:"throughputPerHour"`
	Uptime            time.Duration `json:"uptime"`
}

// Health is the orchestrator health report.
type Health struct {
	Running           bool     `json:"orchestratorRunning"`
	WorkersHealthy    bool     `json:"workersHealthy"`
	QueueHealthy      bool     `json:"queueHealthy"`
	ComponentsHealthy bool     `json:"componentsHealthy"`
	Issues            []string `json:"issues,omitempty"`
}

// Pool is the worker pool both orchestrators share: a bounded priority
// queue drained by a fixed set of workers.
type Pool struct {
	name       string
	queue      *queue.JobQueue
	processor  Processor
	recorder   ExecutionRecorder
	maxWorkers int

	mu        sync.Mutex
	workers   []*worker
	running   bool
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds a pool. Workers are spawned by Setup.
func NewPool(name string, maxWorkers, maxQueueSize int, processor Processor, recorder ExecutionRecorder) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:       name,
		queue:      queue.New(name, maxQueueSize),
		processor:  processor,
		recorder:   recorder,
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Setup spawns the worker goroutines.
func (p *Pool) Setup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.startedAt = time.Now()

	for i := 0; i < p.maxWorkers; i++ {
		w := &worker{stats: WorkerStats{ID: i, StartedAt: time.Now()}}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go p.run(w)
	}
	log.Info().
		Str("pool", p.name).
		Int("workers", p.maxWorkers).
		Msg("Worker pool started")
}

// Cleanup stops the pool: no new jobs are pulled, in-flight jobs finish,
// then workers exit. If the wait outlives ctx the teardown degrades to an
// immediate cancel.
func (p *Pool) Cleanup(ctx context.Context) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Str("pool", p.name).Msg("Graceful stop timed out, cancelling workers")
		p.cancel()
		<-done
	}
	p.cancel()
	log.Info().Str("pool", p.name).Msg("Worker pool stopped")
}

// Enqueue submits a job. A full queue rejects with a capacity error.
func (p *Pool) Enqueue(job *models.Job) error {
	if !p.queue.Add(job) {
		metrics.QueueRejectedTotal.WithLabelValues(p.name).Inc()
		return dferrors.Capacity("enqueue_" + p.name).WithWebsite(job.WebsiteID)
	}
	metrics.QueueDepth.WithLabelValues(p.name).Set(float64(p.queue.Len()))
	return nil
}

func (p *Pool) run(w *worker) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		p.mu.Lock()
		running := p.running
		p.mu.Unlock()
		if !running {
			return
		}

		job := p.queue.Get(p.ctx, getJobTimeout)
		if job == nil {
			continue
		}
		metrics.QueueDepth.WithLabelValues(p.name).Set(float64(p.queue.Len()))
		p.handle(w, job)
	}
}

// handle processes one job with panic isolation: a panicking processor
// counts as a failure, the worker pauses briefly and resumes.
func (p *Pool) handle(w *worker, job *models.Job) {
	w.mu.Lock()
	w.stats.CurrentJobID = job.ID
	w.mu.Unlock()

	now := time.Now()
	job.StartedAt = &now

	var execID string
	if p.recorder != nil {
		execID = job.ID + "-exec"
		if err := p.recorder.RecordJobStart(p.ctx, &models.JobExecution{
			ID:        execID,
			JobID:     job.ID,
			WebsiteID: job.WebsiteID,
			Status:    "running",
			StartedAt: now,
		}); err != nil {
			log.Warn().Err(err).Str("jobID", job.ID).Msg("Failed to record job start")
		}
	}

	err := p.processSafe(job)

	completed := time.Now()
	job.CompletedAt = &completed

	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	metrics.JobsProcessedTotal.WithLabelValues(p.name, outcome).Inc()

	if p.recorder != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if recErr := p.recorder.RecordJobEnd(p.ctx, execID, outcome, errMsg); recErr != nil {
			log.Warn().Err(recErr).Str("jobID", job.ID).Msg("Failed to record job end")
		}
	}

	w.mu.Lock()
	w.stats.Processed++
	if err != nil {
		w.stats.Failed++
	} else {
		w.stats.Succeeded++
	}
	w.stats.CurrentJobID = ""
	w.stats.LastJobAt = &completed
	w.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).
			Str("pool", p.name).
			Str("jobID", job.ID).
			Str("websiteID", job.WebsiteID).
			Msg("Job failed")
	}
}

func (p *Pool) processSafe(job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("pool", p.name).
				Str("jobID", job.ID).
				Interface("panic", r).
				Msg("Worker recovered from panic")
			err = dferrors.New(dferrors.KindFatal, "process_"+p.name, dferrors.ErrFatal)
			time.Sleep(panicPause)
		}
	}()
	return p.processor.Process(p.ctx, job)
}

// addAlerts bumps a worker's alert counter; the classification processor
// calls it through the pool because workers are internal.
func (p *Pool) addAlerts(jobID string, n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.mu.Lock()
		if w.stats.CurrentJobID == jobID {
			w.stats.AlertsGenerated += n
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()
	}
}

// Stats snapshots the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	workers := make([]*worker, len(p.workers))
	copy(workers, p.workers)
	startedAt := p.startedAt
	p.mu.Unlock()

	stats := PoolStats{Queue: p.queue.Stats()}
	for _, w := range workers {
		ws := w.snapshot()
		stats.Workers = append(stats.Workers, ws)
		stats.TotalProcessed += ws.Processed
		stats.TotalSucceeded += ws.Succeeded
		stats.TotalFailed += ws.Failed
	}
	if stats.TotalProcessed > 0 {
		stats.SuccessRate = float64(stats.TotalSucceeded) / float64(stats.TotalProcessed)
	}
	if !startedAt.IsZero() {
		stats.Uptime = time.Since(startedAt)
		if hours := stats.Uptime.Hours(); hours > 0 {
			stats.ThroughputPerHour = float64(stats.TotalProcessed) / hours
		}
	}
	return stats
}

// Health reports the pool's operational state.
func (p *Pool) Health() Health {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	h := Health{
		Running:           running,
		WorkersHealthy:    running,
		QueueHealthy:      !p.queue.IsFull(),
		ComponentsHealthy: true,
	}
	if !running {
		h.Issues = append(h.Issues, p.name+" orchestrator not running")
	}
	if !h.QueueHealthy {
		h.Issues = append(h.Issues, p.name+" queue at capacity")
	}
	return h
}

// QueueLen exposes the pending job count.
func (p *Pool) QueueLen() int {
	return p.queue.Len()
}
