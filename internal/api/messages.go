package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nkapadia/mailbridge/internal/store"
)

type MessageHandler struct {
	store *store.PostgresStore
}

func NewMessageHandler(s *store.PostgresStore) *MessageHandler {
	return &MessageHandler{store: s}
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("source_id")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := h.store.ListMessages(r.Context(), sourceID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	respondJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.store.GetMessage(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get message")
		return
	}
	if msg == nil {
		respondError(w, http.StatusNotFound, "message not found")
		return
	}

	respondJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Attachments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	attachments, err := h.store.ListAttachments(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attachments")
		return
	}

	respondJSON(w, http.StatusOK, attachments)
}
