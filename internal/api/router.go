package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nkapadia/mailbridge/internal/store"
)

// NewRouter creates and configures the HTTP router: the webhook boundary
// plus read-only admin endpoints.
func NewRouter(webhook *WebhookHandler, pgStore *store.PostgresStore) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	dlqHandler := NewDeadLetterHandler(pgStore)
	subHandler := NewSubscriptionHandler(pgStore)
	msgHandler := NewMessageHandler(pgStore)

	// Webhook boundary — kept off the /api prefix because the external
	// notifier calls it directly.
	r.Get("/webhooks/notifications", webhook.Handshake)
	r.Post("/webhooks/notifications", webhook.Receive)

	// Admin API
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Get("/{id}", dlqHandler.Get)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
		})

		r.Get("/subscriptions", subHandler.List)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", msgHandler.List)
			r.Get("/{id}", msgHandler.Get)
			r.Get("/{id}/attachments", msgHandler.Attachments)
		})
	})

	return r
}
