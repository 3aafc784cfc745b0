// Package reconcile is the backup polling safety net: it re-derives events
// the push path may have missed by listing recent messages per source and
// diffing against a persisted watermark.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/nkapadia/mailbridge/internal/graph"
	"github.com/nkapadia/mailbridge/internal/ingest"
)

// initialLookback bounds the first polling cycle for a source that has no
// watermark yet, so a fresh deployment does not replay the entire mailbox.
const initialLookback = 24 * time.Hour

// SourceLister is the listing slice of the platform client.
type SourceLister interface {
	ListMessagesSince(ctx context.Context, sourceID string, since time.Time) ([]graph.Message, error)
}

// WatermarkStore is the persisted watermark state, owned exclusively by the
// reconciler.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, sourceID string) (*domain.WatermarkState, error)
	AdvanceWatermark(ctx context.Context, sourceID string, polledAt, highWater time.Time) error
}

// Submitter is the job submission gateway. The reconciler submits through
// the identical gateway as the webhook path, so there is exactly one
// ingestion code path regardless of trigger.
type Submitter interface {
	Submit(ctx context.Context, env *domain.JobEnvelope) error
}

// Reconciler polls each monitored source on its own ticker.
type Reconciler struct {
	client      SourceLister
	store       WatermarkStore
	gateway     Submitter
	sources     []string
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

func NewReconciler(client SourceLister, store WatermarkStore, gateway Submitter, sources []string, interval time.Duration, maxAttempts int, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		client:      client,
		store:       store,
		gateway:     gateway,
		sources:     sources,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	for _, sourceID := range r.sources {
		r.wg.Add(1)
		go r.run(ctx, sourceID)
	}
	r.logger.Info("polling reconciler started", "sources", len(r.sources), "interval", r.interval.String())
}

func (r *Reconciler) Stop() {
	r.wg.Wait()
	r.logger.Info("polling reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context, sourceID string) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.pollSource(ctx, sourceID); err != nil && ctx.Err() == nil {
				r.logger.Error("polling cycle failed", "error", err, "source_id", sourceID)
			}
		}
	}
}

// pollSource runs one reconciliation cycle: list messages newer than the
// watermark, submit an ingest job per candidate, then advance the watermark
// to the highest timestamp whose job was submitted. The watermark never
// regresses, even on a cycle that found nothing.
func (r *Reconciler) pollSource(ctx context.Context, sourceID string) error {
	wm, err := r.store.GetWatermark(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("loading watermark: %w", err)
	}

	since := r.now().Add(-initialLookback)
	if wm != nil {
		since = wm.HighWaterTimestamp
	}

	messages, err := r.client.ListMessagesSince(ctx, sourceID, since)
	if err != nil {
		return fmt.Errorf("listing recent messages: %w", err)
	}

	highWater := since
	submitted := 0
	for _, msg := range messages {
		env, err := ingest.NewJob(sourceID, msg.ID, r.maxAttempts)
		if err != nil {
			r.logger.Error("failed to build ingest job", "error", err, "source_id", sourceID)
			continue
		}
		if err := r.gateway.Submit(ctx, env); err != nil {
			// Do not advance past an unsubmitted event; the next cycle
			// picks it up again.
			r.logger.Error("failed to submit ingest job", "error", err, "source_id", sourceID, "message_id", msg.ID)
			break
		}
		submitted++
		if msg.ReceivedDateTime.After(highWater) {
			highWater = msg.ReceivedDateTime
		}
	}

	if err := r.store.AdvanceWatermark(ctx, sourceID, r.now(), highWater); err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}

	if submitted > 0 {
		r.logger.Info("polling cycle complete",
			"source_id", sourceID,
			"submitted", submitted,
			"high_water", highWater,
		)
	}
	return nil
}
