package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/points-exporter/internal/jobs"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/google/uuid"
)

// Options configures a Queue. Zero values take defaults.
type Options struct {
	// BufferSize determines how many jobs can be queued before publishing
	// blocks. Default 100.
	BufferSize int
	// Workers is the number of jobs processed concurrently. Default 5.
	Workers int
	// RetryDelay is multiplied by the retry count before a failed job is
	// re-enqueued. Default one second.
	RetryDelay time.Duration
	// MaxRetries applies to published jobs that do not set their own.
	MaxRetries int
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs do not survive a restart; the watermark decides what is redone.
type Queue struct {
	jobChan   chan *jobs.ExportBatchJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	opts      Options
	closed    bool

	// pending counts published jobs that are not terminal yet.
	pendingMu sync.Mutex
	pending   int
	idle      chan struct{}
}

// NewQueue creates a new in-memory job queue.
func NewQueue(opts Options, store jobs.JobStore) *Queue {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Queue{
		jobChan:   make(chan *jobs.ExportBatchJob, opts.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		opts:      opts,
		idle:      make(chan struct{}),
	}
}

// PublishExportBatch implements the Publisher interface.
// It enqueues a batch export job for asynchronous processing.
func (q *Queue) PublishExportBatch(ctx context.Context, job *jobs.ExportBatchJob) error {
	// Generate job ID if not provided
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.opts.MaxRetries
	}

	q.addPending()
	if err := q.enqueue(ctx, job); err != nil {
		q.donePending()
		return err
	}
	return nil
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.ExportBatchJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	// Enqueue job with context cancellation support
	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
// It starts Options.Workers goroutines that process jobs with handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.ExportBatchJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("date", job.Date.String()).
		Int("batch", job.Batch).
		Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.save(ctx, job)
		q.donePending()
		return
	}

	job.Error = err.Error()
	var perm *jobs.PermanentError
	if job.RetryCount >= job.MaxRetries || errors.As(err, &perm) {
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("Batch job failed")
		q.save(ctx, job)
		q.donePending()
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)

	// Re-enqueue with a delay growing with the retry count.
	delay := time.Duration(job.RetryCount) * q.opts.RetryDelay
	log.Warn().Err(err).Int("retry", job.RetryCount).Dur("delay", delay).Msg("Batch job will be retried")

	time.AfterFunc(delay, func() {
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.enqueue(ctx, job); err != nil {
			job.Status = jobs.JobStatusFailed
			job.Error = fmt.Sprintf("re-enqueue: %v", err)
			q.save(context.WithoutCancel(ctx), job)
			q.donePending()
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.ExportBatchJob) {
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

func (q *Queue) addPending() {
	q.pendingMu.Lock()
	q.pending++
	q.pendingMu.Unlock()
}

func (q *Queue) donePending() {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	q.pending--
	if q.pending == 0 {
		close(q.idle)
		q.idle = make(chan struct{})
	}
}

// Wait implements the Consumer interface.
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.pendingMu.Lock()
		if q.pending == 0 {
			q.pendingMu.Unlock()
			return nil
		}
		idle := q.idle
		q.pendingMu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
// It closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
