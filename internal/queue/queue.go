// Package queue provides the bounded priority queue backing the worker pools.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/models"
)

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	PendingJobs int  `json:"pendingJobs"`
	MaxSize     int  `json:"maxSize"`
	IsFull      bool `json:"isFull"`
}

// jobHeap orders jobs by (priority ASC, created_at ASC, id ASC).
type jobHeap []*models.Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
		return h[i].CreatedAt.Before(h[j].CreatedAt)
	}
	return h[i].ID < h[j].ID
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(*models.Job)) }

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// JobQueue is a bounded, priority-ordered job queue. Producers are rejected
// rather than blocked when the queue is full.
type JobQueue struct {
	name    string
	maxSize int

	mu      sync.Mutex
	items   jobHeap
	pending map[string]*models.Job

	// tokens counts queued items; capacity maxSize keeps sends non-blocking.
	tokens chan struct{}
	done   chan struct{}
	closed bool
}

// New creates a queue with the given capacity.
func New(name string, maxSize int) *JobQueue {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &JobQueue{
		name:    name,
		maxSize: maxSize,
		pending: make(map[string]*models.Job),
		tokens:  make(chan struct{}, maxSize),
		done:    make(chan struct{}),
	}
}

// Add enqueues a job. Returns false when the queue is full or closed.
func (q *JobQueue) Add(job *models.Job) bool {
	q.mu.Lock()
	if q.closed || len(q.items) >= q.maxSize {
		full := len(q.items) >= q.maxSize
		q.mu.Unlock()
		if full {
			log.Warn().
				Str("queue", q.name).
				Str("jobID", job.ID).
				Int("maxSize", q.maxSize).
				Msg("Queue is full, rejecting job")
		}
		return false
	}
	heap.Push(&q.items, job)
	q.pending[job.ID] = job
	size := len(q.items)
	q.mu.Unlock()

	q.tokens <- struct{}{}

	log.Debug().
		Str("queue", q.name).
		Str("jobID", job.ID).
		Int("priority", job.Priority).
		Int("queueSize", size).
		Msg("Job added to queue")
	return true
}

// Get blocks until a job is available, the timeout elapses, or the queue is
// closed. Returns nil on timeout or close.
func (q *JobQueue) Get(ctx context.Context, timeout time.Duration) *models.Job {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.tokens:
	case <-timer.C:
		return nil
	case <-q.done:
		return nil
	case <-ctx.Done():
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	job := heap.Pop(&q.items).(*models.Job)
	delete(q.pending, job.ID)
	return job
}

// Remove drops a pending job by id. Returns true when the job was queued.
func (q *JobQueue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[jobID]; !ok {
		return false
	}
	for i, j := range q.items {
		if j.ID == jobID {
			heap.Remove(&q.items, i)
			break
		}
	}
	delete(q.pending, jobID)
	// Drain the matching token so counts stay aligned.
	select {
	case <-q.tokens:
	default:
	}
	return true
}

// Len returns the number of pending jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsFull reports whether the queue is at capacity.
func (q *JobQueue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) >= q.maxSize
}

// Stats returns a snapshot of queue state.
func (q *JobQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		PendingJobs: len(q.items),
		MaxSize:     q.maxSize,
		IsFull:      len(q.items) >= q.maxSize,
	}
}

// Close wakes all waiting consumers. Pending jobs are discarded.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
