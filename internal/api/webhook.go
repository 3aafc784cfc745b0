package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/nkapadia/mailbridge/internal/ingest"
)

// Submitter is the job submission gateway.
type Submitter interface {
	Submit(ctx context.Context, env *domain.JobEnvelope) error
}

// SourceResolver maps an external subscription id to the monitored source
// it was created for. Returns "" when no subscription record matches.
type SourceResolver interface {
	FindSourceBySubscriptionID(ctx context.Context, externalID string) (string, error)
}

// WebhookHandler is the HTTP boundary for inbound push notifications. It
// validates entries, translates them into job submissions, and answers
// fast — the notifier enforces a short response SLA and will disable
// delivery if we block on ingestion.
type WebhookHandler struct {
	gateway     Submitter
	sources     SourceResolver
	clientState string
	maxAttempts int
	logger      *slog.Logger
}

func NewWebhookHandler(gateway Submitter, sources SourceResolver, clientState string, maxAttempts int, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		gateway:     gateway,
		sources:     sources,
		clientState: clientState,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Handshake answers the provider's endpoint validation: echo the supplied
// token verbatim as the entire plain-text body.
func (h *WebhookHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("validationToken")
	if token == "" {
		respondError(w, http.StatusBadRequest, "validationToken is required")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token))
}

// Receive handles a notification batch. Entries are validated and submitted
// individually: one bad entry does not stop its siblings, but any
// client-state mismatch turns the overall response into 401.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	// Some providers send the validation handshake as a POST too.
	if r.URL.Query().Get("validationToken") != "" {
		h.Handshake(w, r)
		return
	}

	var batch domain.NotificationBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted := 0
	unauthorized := 0

	for _, entry := range batch.Value {
		if entry.ClientState != h.clientState {
			h.logger.Warn("notification rejected: client state mismatch",
				"subscription_id", entry.SubscriptionID,
			)
			unauthorized++
			continue
		}

		if h.submit(r, entry) {
			accepted++
		}
	}

	if unauthorized > 0 {
		respondError(w, http.StatusUnauthorized, "invalid client state")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

// submit derives the event reference for one valid entry and hands it to
// the gateway. Returns false for entries that cannot be mapped to a job.
func (h *WebhookHandler) submit(r *http.Request, entry domain.EventNotification) bool {
	eventRef := resolveEventRef(entry)
	if eventRef == "" {
		h.logger.Warn("notification has no resolvable resource id",
			"subscription_id", entry.SubscriptionID,
			"resource", entry.Resource,
		)
		return false
	}

	sourceID, err := h.sources.FindSourceBySubscriptionID(r.Context(), entry.SubscriptionID)
	if err != nil {
		h.logger.Error("failed to resolve notification source",
			"error", err,
			"subscription_id", entry.SubscriptionID,
		)
		return false
	}
	if sourceID == "" {
		h.logger.Warn("notification for unknown subscription",
			"subscription_id", entry.SubscriptionID,
		)
		return false
	}

	env, err := ingest.NewJob(sourceID, eventRef, h.maxAttempts)
	if err != nil {
		h.logger.Error("failed to build ingest job", "error", err, "source_id", sourceID)
		return false
	}

	if err := h.gateway.Submit(r.Context(), env); err != nil {
		// The polling reconciler backstops submission failures.
		h.logger.Error("failed to submit ingest job",
			"error", err,
			"source_id", sourceID,
			"event_ref", eventRef,
		)
		return false
	}

	return true
}

// resolveEventRef prefers the structured resource id and falls back to the
// trailing segment of the resource path.
func resolveEventRef(entry domain.EventNotification) string {
	if entry.ResourceData != nil && entry.ResourceData.ID != "" {
		return entry.ResourceData.ID
	}
	resource := strings.TrimRight(entry.Resource, "/")
	if idx := strings.LastIndex(resource, "/"); idx >= 0 {
		return resource[idx+1:]
	}
	return resource
}
