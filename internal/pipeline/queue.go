package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobKind identifies an enrichment stage.
type JobKind string

const (
	JobProformaEnrichment JobKind = "PROFORMA_ENRICHMENT"
	JobPOGeneration       JobKind = "PO_GENERATION"
	JobReceiptValidation  JobKind = "RECEIPT_VALIDATION"
)

// Job is one enqueued enrichment task.
type Job struct {
	Kind      JobKind
	RequestID string
}

// Queue is the post-commit enrichment queue. Workflow operations commit
// first and unconditionally; jobs enqueued here run afterwards on a bounded
// worker pool and persist best-effort follow-up writes that never re-open
// the committed transition. The queue is the seam where a retry/backoff
// policy could be added without touching the state machine.
type Queue struct {
	jobs      chan Job
	workers   int
	processor *Processor
	logger    *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewQueue creates an enrichment queue.
func NewQueue(processor *Processor, workers, queueSize int, logger *zap.Logger) *Queue {
	return &Queue{
		jobs:      make(chan Job, queueSize),
		workers:   workers,
		processor: processor,
		logger:    logger,
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isRunning {
		return fmt.Errorf("enrichment queue already running")
	}

	q.ctx, q.cancel = context.WithCancel(ctx)
	q.isRunning = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(i)
	}

	q.logger.Info("Enrichment queue started",
		zap.Int("workers", q.workers),
		zap.Int("queue_size", cap(q.jobs)))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.cancel()
	q.isRunning = false
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("Enrichment queue stopped")
	return nil
}

// Name identifies the worker for lifecycle logging.
func (q *Queue) Name() string {
	return "enrichment-queue"
}

func (q *Queue) run(worker int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			start := time.Now()
			q.dispatch(job)
			q.logger.Debug("Enrichment job finished",
				zap.Int("worker", worker),
				zap.String("kind", string(job.Kind)),
				zap.String("request_id", job.RequestID),
				zap.Duration("elapsed", time.Since(start)))
		}
	}
}

func (q *Queue) dispatch(job Job) {
	var err error
	switch job.Kind {
	case JobProformaEnrichment:
		err = q.processor.ProcessProforma(q.ctx, job.RequestID)
	case JobPOGeneration:
		err = q.processor.ProcessPOGeneration(q.ctx, job.RequestID)
	case JobReceiptValidation:
		err = q.processor.ProcessReceiptValidation(q.ctx, job.RequestID)
	default:
		q.logger.Error("Unknown enrichment job kind", zap.String("kind", string(job.Kind)))
		return
	}
	if err != nil {
		// enrichment is best-effort; the authoritative transition already
		// committed, so this is only worth a log line
		q.logger.Warn("Enrichment job failed",
			zap.String("kind", string(job.Kind)),
			zap.String("request_id", job.RequestID),
			zap.Error(err))
	}
}

// Enqueue submits a job without blocking the caller. A full queue drops the
// job with a warning; enrichment carries no delivery guarantee.
func (q *Queue) Enqueue(kind JobKind, requestID string) {
	select {
	case q.jobs <- Job{Kind: kind, RequestID: requestID}:
	default:
		q.logger.Warn("Enrichment queue full, dropping job",
			zap.String("kind", string(kind)),
			zap.String("request_id", requestID))
	}
}

// RequestApproved implements the state machine's post-commit hook: full
// approval schedules purchase order generation.
func (q *Queue) RequestApproved(requestID string) {
	q.Enqueue(JobPOGeneration, requestID)
}
