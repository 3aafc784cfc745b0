package api

import (
	"net/http"

	"github.com/nkapadia/mailbridge/internal/store"
)

type SubscriptionHandler struct {
	store *store.PostgresStore
}

func NewSubscriptionHandler(s *store.PostgresStore) *SubscriptionHandler {
	return &SubscriptionHandler{store: s}
}

// List exposes the current subscription records for operational visibility:
// which sources have live subscriptions and when they expire.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListSubscriptionRecords(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, records)
}
