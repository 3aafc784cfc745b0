// Package ingest turns a raw event reference into a persisted message
// record. It owns the ingest-event job type, the idempotency-key
// derivation shared by the webhook and polling paths, and the handler.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nkapadia/mailbridge/internal/domain"
)

// JobTypeIngestEvent is the registry key for the ingestion handler.
const JobTypeIngestEvent = "ingest-event"

// EventRef is the payload of an ingest-event job.
type EventRef struct {
	SourceID  string `json:"sourceId"`
	MessageID string `json:"messageId"`
}

// Key derives the idempotency key for an event. The source id disambiguates
// identical message ids across monitored sources. Both the webhook receiver
// and the polling reconciler must derive keys through this function so
// duplicate triggers collapse to one effect.
func Key(sourceID, messageID string) string {
	return sourceID + ":" + messageID
}

// NewJob builds an ingest-event envelope for a source event.
func NewJob(sourceID, messageID string, maxAttempts int) (*domain.JobEnvelope, error) {
	if sourceID == "" || messageID == "" {
		return nil, fmt.Errorf("source id and message id are required")
	}

	payload, err := json.Marshal(EventRef{SourceID: sourceID, MessageID: messageID})
	if err != nil {
		return nil, fmt.Errorf("marshaling event ref: %w", err)
	}

	return &domain.JobEnvelope{
		JobID:          uuid.NewString(),
		JobType:        JobTypeIngestEvent,
		IdempotencyKey: Key(sourceID, messageID),
		Attempt:        1,
		MaxAttempts:    maxAttempts,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
