package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nkapadia/mailbridge/internal/domain"
)

// Gateway is the single entry point for producing jobs. Every producer —
// the webhook receiver and the polling reconciler — submits through it, so
// there is exactly one enqueue path regardless of trigger.
type Gateway struct {
	queue  JobQueue
	logger *slog.Logger
}

func NewGateway(queue JobQueue, logger *slog.Logger) *Gateway {
	return &Gateway{queue: queue, logger: logger}
}

// Submit enqueues one envelope. No retries here: redelivery after failure
// is the engine's responsibility, after dequeue.
func (g *Gateway) Submit(ctx context.Context, env *domain.JobEnvelope) error {
	if env.JobID == "" {
		return fmt.Errorf("job id is required")
	}

	if err := g.queue.Enqueue(ctx, env, 0); err != nil {
		return fmt.Errorf("submitting job %s: %w", env.JobID, err)
	}

	g.logger.Debug("job submitted",
		"job_id", env.JobID,
		"job_type", env.JobType,
		"idempotency_key", env.IdempotencyKey,
	)
	return nil
}
