package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/nkapadia/mailbridge/internal/graph"
)

// MessageStore is the slice of the entity store the handler writes to.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *domain.Message) (bool, error)
	InsertAttachment(ctx context.Context, att *domain.Attachment) error
}

// SourceClient is the slice of the platform client the handler reads from.
type SourceClient interface {
	GetMessage(ctx context.Context, sourceID, messageID string) (*graph.Message, error)
	ListAttachments(ctx context.Context, sourceID, messageID string) ([]graph.Attachment, error)
}

// Handler ingests one externally-pushed event: fetch the authoritative
// payload, persist it idempotently, then capture attachments as a
// secondary effect that never fails the primary record.
type Handler struct {
	client SourceClient
	store  MessageStore
	cache  DedupCache
	logger *slog.Logger
}

func NewHandler(client SourceClient, store MessageStore, cache DedupCache, logger *slog.Logger) *Handler {
	return &Handler{client: client, store: store, cache: cache, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, env *domain.JobEnvelope) domain.JobOutcome {
	var ref EventRef
	if err := json.Unmarshal(env.Payload, &ref); err != nil {
		return domain.PoisonedOutcome(fmt.Sprintf("malformed payload: %v", err))
	}
	if ref.SourceID == "" || ref.MessageID == "" {
		return domain.PoisonedOutcome("payload missing source or message id")
	}

	key := env.IdempotencyKey
	if key == "" {
		key = Key(ref.SourceID, ref.MessageID)
	}

	// Fast path: cache errors are ignored, the store check below is
	// authoritative.
	if seen, err := h.cache.Seen(ctx, key); err == nil && seen {
		h.logger.Debug("duplicate event skipped", "idempotency_key", key)
		return domain.CompletedOutcome()
	}

	msg, err := h.client.GetMessage(ctx, ref.SourceID, ref.MessageID)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			// Deleted upstream before we could fetch it; retrying can
			// never succeed and there is nothing to ingest.
			h.logger.Warn("message gone upstream, skipping",
				"source_id", ref.SourceID,
				"message_id", ref.MessageID,
			)
			h.markSeen(ctx, key)
			return domain.CompletedOutcome()
		}
		if graph.IsTransient(err) {
			return domain.RetryableOutcome(err)
		}
		return domain.PoisonedOutcome(fmt.Sprintf("fetching message: %v", err))
	}

	record := &domain.Message{
		SourceID:    ref.SourceID,
		ExternalID:  msg.ID,
		Subject:     msg.Subject,
		Sender:      msg.Sender(),
		ReceivedAt:  msg.ReceivedDateTime,
		BodyPreview: msg.BodyPreview,
	}

	inserted, err := h.store.InsertMessage(ctx, record)
	if err != nil {
		return domain.RetryableOutcome(fmt.Errorf("persisting message: %w", err))
	}

	h.markSeen(ctx, key)

	if !inserted {
		// The webhook and polling paths raced; the other one won.
		h.logger.Debug("message already ingested",
			"source_id", ref.SourceID,
			"message_id", ref.MessageID,
		)
		return domain.CompletedOutcome()
	}

	h.logger.Info("message ingested",
		"source_id", ref.SourceID,
		"message_id", ref.MessageID,
		"record_id", record.ID,
		"attempt", env.Attempt,
	)

	if msg.HasAttachments {
		h.captureAttachments(ctx, ref, record.ID)
	}

	return domain.CompletedOutcome()
}

// captureAttachments is a secondary side effect: failures are logged as
// warnings and never alter the primary outcome.
func (h *Handler) captureAttachments(ctx context.Context, ref EventRef, recordID string) {
	attachments, err := h.client.ListAttachments(ctx, ref.SourceID, ref.MessageID)
	if err != nil {
		h.logger.Warn("attachment capture failed",
			"error", err,
			"source_id", ref.SourceID,
			"message_id", ref.MessageID,
		)
		return
	}

	for _, att := range attachments {
		record := &domain.Attachment{
			MessageID:   recordID,
			ExternalID:  att.ID,
			Name:        att.Name,
			ContentType: att.ContentType,
			SizeBytes:   att.Size,
		}
		if err := h.store.InsertAttachment(ctx, record); err != nil {
			h.logger.Warn("attachment persist failed",
				"error", err,
				"message_id", ref.MessageID,
				"attachment", att.Name,
			)
		}
	}
}

func (h *Handler) markSeen(ctx context.Context, key string) {
	if err := h.cache.MarkSeen(ctx, key); err != nil {
		h.logger.Warn("failed to mark dedup cache", "error", err, "idempotency_key", key)
	}
}
