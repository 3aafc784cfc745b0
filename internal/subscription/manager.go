// Package subscription keeps each monitored source's push subscription
// alive: create when missing, renew before the expiry threshold, recreate
// when the platform has forgotten the subscription.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/nkapadia/mailbridge/internal/graph"
)

// PlatformClient is the subscription-management slice of the platform
// client.
type PlatformClient interface {
	CreateSubscription(ctx context.Context, sub graph.Subscription) (*graph.Subscription, error)
	RenewSubscription(ctx context.Context, id string, expires time.Time) (*graph.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// Store is the persisted subscription state, owned exclusively by this
// manager.
type Store interface {
	GetSubscriptionRecord(ctx context.Context, sourceID string) (*domain.SubscriptionRecord, error)
	UpsertSubscriptionRecord(ctx context.Context, rec *domain.SubscriptionRecord) error
}

// Manager runs one goroutine per monitored source, each owning its own
// ticker. A source's tick finishes before its next one starts, so
// renew/create never race per source; unrelated sources stay independent.
type Manager struct {
	client  PlatformClient
	store   Store
	sources []string
	logger  *slog.Logger

	tick             time.Duration
	renewalThreshold time.Duration
	subscriptionTTL  time.Duration
	notificationURL  string
	clientState      string

	wg  sync.WaitGroup
	now func() time.Time
}

func NewManager(client PlatformClient, store Store, sources []string, tick, renewalThreshold, subscriptionTTL time.Duration, notificationURL, clientState string, logger *slog.Logger) *Manager {
	return &Manager{
		client:           client,
		store:            store,
		sources:          sources,
		logger:           logger,
		tick:             tick,
		renewalThreshold: renewalThreshold,
		subscriptionTTL:  subscriptionTTL,
		notificationURL:  notificationURL,
		clientState:      clientState,
		now:              time.Now,
	}
}

// Start launches the per-source loops. Each runs an immediate tick, then
// repeats on the interval until the context is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for _, sourceID := range m.sources {
		m.wg.Add(1)
		go m.run(ctx, sourceID)
	}
	m.logger.Info("subscription manager started", "sources", len(m.sources))
}

// Stop waits for all source loops to finish.
func (m *Manager) Stop() {
	m.wg.Wait()
	m.logger.Info("subscription manager stopped")
}

func (m *Manager) run(ctx context.Context, sourceID string) {
	defer m.wg.Done()

	if err := m.reconcileSource(ctx, sourceID); err != nil && ctx.Err() == nil {
		m.logger.Error("subscription tick failed", "error", err, "source_id", sourceID)
	}

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.reconcileSource(ctx, sourceID); err != nil && ctx.Err() == nil {
				m.logger.Error("subscription tick failed", "error", err, "source_id", sourceID)
			}
		}
	}
}

// reconcileSource performs one lifecycle tick for a source: create when no
// external subscription exists, renew when inside the threshold, recreate
// when renewal reports the subscription is gone upstream.
func (m *Manager) reconcileSource(ctx context.Context, sourceID string) error {
	rec, err := m.store.GetSubscriptionRecord(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("loading subscription record: %w", err)
	}
	if rec == nil {
		rec = &domain.SubscriptionRecord{SourceID: sourceID}
	}

	if rec.ExternalSubscriptionID == nil || *rec.ExternalSubscriptionID == "" {
		return m.create(ctx, rec)
	}

	if rec.ExpiresAt != nil && rec.ExpiresAt.Sub(m.now()) >= m.renewalThreshold {
		// Far from expiry, nothing to do this tick.
		return nil
	}

	renewed, err := m.client.RenewSubscription(ctx, *rec.ExternalSubscriptionID, m.now().Add(m.subscriptionTTL))
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			// The platform lost the subscription. Clear the stale id
			// (delete errors are ignored) and create a fresh one.
			m.logger.Warn("subscription gone upstream, recreating",
				"source_id", sourceID,
				"subscription_id", *rec.ExternalSubscriptionID,
			)
			if delErr := m.client.DeleteSubscription(ctx, *rec.ExternalSubscriptionID); delErr != nil {
				m.logger.Debug("stale subscription delete failed",
					"error", delErr,
					"source_id", sourceID,
				)
			}
			return m.create(ctx, rec)
		}
		return fmt.Errorf("renewing subscription: %w", err)
	}

	rec.ExpiresAt = &renewed.ExpirationDateTime
	if err := m.store.UpsertSubscriptionRecord(ctx, rec); err != nil {
		return fmt.Errorf("persisting renewed expiry: %w", err)
	}

	m.logger.Info("subscription renewed",
		"source_id", sourceID,
		"subscription_id", *rec.ExternalSubscriptionID,
		"expires_at", renewed.ExpirationDateTime,
	)
	return nil
}

func (m *Manager) create(ctx context.Context, rec *domain.SubscriptionRecord) error {
	created, err := m.client.CreateSubscription(ctx, graph.Subscription{
		Resource:           resourcePath(rec.SourceID),
		ChangeType:         "created",
		NotificationURL:    m.notificationURL,
		ExpirationDateTime: m.now().Add(m.subscriptionTTL),
		ClientState:        m.clientState,
	})
	if err != nil {
		return fmt.Errorf("creating subscription: %w", err)
	}

	rec.ExternalSubscriptionID = &created.ID
	rec.ExpiresAt = &created.ExpirationDateTime
	rec.NotificationURL = m.notificationURL
	rec.ClientState = m.clientState

	if err := m.store.UpsertSubscriptionRecord(ctx, rec); err != nil {
		return fmt.Errorf("persisting new subscription: %w", err)
	}

	m.logger.Info("subscription created",
		"source_id", rec.SourceID,
		"subscription_id", created.ID,
		"expires_at", created.ExpirationDateTime,
	)
	return nil
}

func resourcePath(sourceID string) string {
	return fmt.Sprintf("/users/%s/mailFolders('inbox')/messages", sourceID)
}
