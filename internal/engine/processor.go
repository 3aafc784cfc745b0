package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/nkapadia/mailbridge/internal/queue"
)

// DeadLetterSink receives jobs that exhausted retries or are permanently
// unprocessable.
type DeadLetterSink interface {
	DeadLetterJob(ctx context.Context, env *domain.JobEnvelope, reason string) error
}

// Processor is the job processing engine: a dispatcher goroutine claims
// ready envelopes from the queue and feeds a fixed pool of workers. Each
// job runs in its own bounded context; outcomes map to ack, delayed
// redelivery, or the dead-letter sink.
type Processor struct {
	queue       queue.JobQueue
	registry    *Registry
	deadLetters DeadLetterSink
	logger      *slog.Logger

	numWorkers   int
	jobTimeout   time.Duration
	pollInterval time.Duration
	batchSize    int
	baseBackoff  time.Duration

	jobs chan *domain.JobEnvelope
	wg   sync.WaitGroup
}

func NewProcessor(q queue.JobQueue, registry *Registry, deadLetters DeadLetterSink, numWorkers int, jobTimeout time.Duration, logger *slog.Logger) *Processor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Processor{
		queue:        q,
		registry:     registry,
		deadLetters:  deadLetters,
		logger:       logger,
		numWorkers:   numWorkers,
		jobTimeout:   jobTimeout,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
		baseBackoff:  2 * time.Second,
		jobs:         make(chan *domain.JobEnvelope, numWorkers*2),
	}
}

// Start launches the dispatcher and worker goroutines. They run until the
// context is cancelled; call Stop to wait for them to finish.
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.dispatch(ctx)

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("job engine started", "num_workers", p.numWorkers)
}

// Stop waits for the dispatcher and all workers to finish. Jobs still in
// the channel when the context was cancelled are abandoned back to the
// queue, never dropped.
func (p *Processor) Stop() {
	p.wg.Wait()
	p.logger.Info("job engine stopped")
}

func (p *Processor) dispatch(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.jobs)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Processor) poll(ctx context.Context) {
	envs, err := p.queue.Dequeue(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to poll job queue", "error", err)
		}
		return
	}

	for _, env := range envs {
		select {
		case p.jobs <- env:
		case <-ctx.Done():
			p.abandon(env)
			return
		}
	}
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for env := range p.jobs {
		if ctx.Err() != nil {
			p.abandon(env)
			continue
		}
		p.process(ctx, env)
	}
}

func (p *Processor) process(ctx context.Context, env *domain.JobEnvelope) {
	handler, ok := p.registry.Resolve(env.JobType)
	if !ok {
		// A missing handler cannot self-correct; no retry.
		p.deadLetter(env, fmt.Sprintf("no handler registered for job type %q", env.JobType))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	start := time.Now()
	outcome := runHandler(jobCtx, handler, env)
	cancel()
	outcome.Duration = time.Since(start)

	switch outcome.Status {
	case domain.StatusCompleted:
		p.logger.Info("job completed",
			"job_id", env.JobID,
			"job_type", env.JobType,
			"attempt", env.Attempt,
			"duration_ms", outcome.Duration.Milliseconds(),
		)
	case domain.StatusRetryable:
		if env.Attempt < env.MaxAttempts {
			p.retry(env, outcome.ErrorMessage)
		} else {
			p.deadLetter(env, fmt.Sprintf("retries exhausted after %d attempts: %s", env.Attempt, outcome.ErrorMessage))
		}
	case domain.StatusPoisoned:
		p.deadLetter(env, outcome.ErrorMessage)
	default:
		p.deadLetter(env, fmt.Sprintf("handler returned unknown status %q", outcome.Status))
	}
}

// runHandler isolates a handler invocation; a panic is recovered into a
// retryable outcome at this boundary.
func runHandler(ctx context.Context, h Handler, env *domain.JobEnvelope) (outcome domain.JobOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.RetryableOutcome(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, env)
}

// retry returns the job to the queue for redelivery with an incremented
// attempt and a short backoff.
func (p *Processor) retry(env *domain.JobEnvelope, errMsg string) {
	next := *env
	next.Attempt++
	delay := time.Duration(next.Attempt) * p.baseBackoff

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.queue.Enqueue(ctx, &next, delay); err != nil {
		p.logger.Error("failed to requeue job",
			"error", err,
			"job_id", env.JobID,
			"attempt", env.Attempt,
		)
		return
	}

	p.logger.Warn("job retry scheduled",
		"job_id", env.JobID,
		"job_type", env.JobType,
		"attempt", next.Attempt,
		"max_attempts", env.MaxAttempts,
		"delay", delay.String(),
		"error", errMsg,
	)
}

// abandon puts an unprocessed job back on the queue unchanged, used when
// shutdown interrupts before a worker ran the handler.
func (p *Processor) abandon(env *domain.JobEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.queue.Enqueue(ctx, env, 0); err != nil {
		p.logger.Error("failed to abandon job back to queue", "error", err, "job_id", env.JobID)
	}
}

func (p *Processor) deadLetter(env *domain.JobEnvelope, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.deadLetters.DeadLetterJob(ctx, env, reason); err != nil {
		p.logger.Error("failed to record dead letter",
			"error", err,
			"job_id", env.JobID,
			"reason", reason,
		)
		return
	}

	p.logger.Warn("job dead-lettered",
		"job_id", env.JobID,
		"job_type", env.JobType,
		"attempt", env.Attempt,
		"reason", reason,
	)
}
