package subscription

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/nkapadia/mailbridge/internal/graph"
)

type fakePlatform struct {
	createCalls int
	renewCalls  int
	deleteCalls int

	createdID string
	renewErr  error
	deleteErr error

	lastCreate graph.Subscription
	lastRenew  string
}

func (f *fakePlatform) CreateSubscription(ctx context.Context, sub graph.Subscription) (*graph.Subscription, error) {
	f.createCalls++
	f.lastCreate = sub
	created := sub
	created.ID = f.createdID
	return &created, nil
}

func (f *fakePlatform) RenewSubscription(ctx context.Context, id string, expires time.Time) (*graph.Subscription, error) {
	f.renewCalls++
	f.lastRenew = id
	if f.renewErr != nil {
		return nil, f.renewErr
	}
	return &graph.Subscription{ID: id, ExpirationDateTime: expires}, nil
}

func (f *fakePlatform) DeleteSubscription(ctx context.Context, id string) error {
	f.deleteCalls++
	return f.deleteErr
}

type fakeStore struct {
	records map[string]*domain.SubscriptionRecord
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*domain.SubscriptionRecord)}
}

func (s *fakeStore) GetSubscriptionRecord(ctx context.Context, sourceID string) (*domain.SubscriptionRecord, error) {
	rec, ok := s.records[sourceID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *fakeStore) UpsertSubscriptionRecord(ctx context.Context, rec *domain.SubscriptionRecord) error {
	s.upserts++
	copied := *rec
	s.records[rec.SourceID] = &copied
	return nil
}

func newTestManager(platform *fakePlatform, store *fakeStore, now time.Time) *Manager {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	m := NewManager(platform, store, []string{"ops@example.com"},
		time.Minute, 24*time.Hour, 71*time.Hour,
		"https://bridge.example.com/webhooks/notifications", "secret1", logger)
	m.now = func() time.Time { return now }
	return m
}

func strPtr(s string) *string { return &s }

func TestManager_CreatesWhenMissing(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	platform := &fakePlatform{createdID: "ext-sub-1"}
	store := newFakeStore()
	m := newTestManager(platform, store, now)

	if err := m.reconcileSource(context.Background(), "ops@example.com"); err != nil {
		t.Fatalf("reconcileSource: %v", err)
	}

	if platform.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", platform.createCalls)
	}
	if platform.lastCreate.Resource != "/users/ops@example.com/mailFolders('inbox')/messages" {
		t.Errorf("resource = %q", platform.lastCreate.Resource)
	}
	if platform.lastCreate.ClientState != "secret1" {
		t.Errorf("clientState = %q", platform.lastCreate.ClientState)
	}

	rec := store.records["ops@example.com"]
	if rec == nil || rec.ExternalSubscriptionID == nil || *rec.ExternalSubscriptionID != "ext-sub-1" {
		t.Fatalf("subscription id not persisted: %+v", rec)
	}
	if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(now.Add(71*time.Hour)) {
		t.Errorf("expiry not persisted: %v", rec.ExpiresAt)
	}
}

func TestManager_RenewsInsideThreshold(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	expiresSoon := now.Add(12 * time.Hour)

	platform := &fakePlatform{}
	store := newFakeStore()
	store.records["ops@example.com"] = &domain.SubscriptionRecord{
		SourceID:               "ops@example.com",
		ExternalSubscriptionID: strPtr("ext-sub-1"),
		ExpiresAt:              &expiresSoon,
	}
	m := newTestManager(platform, store, now)

	if err := m.reconcileSource(context.Background(), "ops@example.com"); err != nil {
		t.Fatalf("reconcileSource: %v", err)
	}

	if platform.renewCalls != 1 || platform.lastRenew != "ext-sub-1" {
		t.Errorf("renewCalls = %d, lastRenew = %q", platform.renewCalls, platform.lastRenew)
	}
	if platform.createCalls != 0 {
		t.Error("renewal path created a new subscription")
	}

	rec := store.records["ops@example.com"]
	if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(now.Add(71*time.Hour)) {
		t.Errorf("renewed expiry not persisted: %v", rec.ExpiresAt)
	}
}

func TestManager_NoopFarFromExpiry(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	expiresLater := now.Add(48 * time.Hour)

	platform := &fakePlatform{}
	store := newFakeStore()
	store.records["ops@example.com"] = &domain.SubscriptionRecord{
		SourceID:               "ops@example.com",
		ExternalSubscriptionID: strPtr("ext-sub-1"),
		ExpiresAt:              &expiresLater,
	}
	m := newTestManager(platform, store, now)

	if err := m.reconcileSource(context.Background(), "ops@example.com"); err != nil {
		t.Fatalf("reconcileSource: %v", err)
	}

	if platform.renewCalls != 0 || platform.createCalls != 0 || store.upserts != 0 {
		t.Errorf("healthy subscription touched: renew=%d create=%d upserts=%d",
			platform.renewCalls, platform.createCalls, store.upserts)
	}
}

func TestManager_RecreatesWhenGoneUpstream(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	expiresSoon := now.Add(time.Hour)

	platform := &fakePlatform{createdID: "ext-sub-2", renewErr: graph.ErrNotFound}
	store := newFakeStore()
	store.records["ops@example.com"] = &domain.SubscriptionRecord{
		SourceID:               "ops@example.com",
		ExternalSubscriptionID: strPtr("ext-sub-1"),
		ExpiresAt:              &expiresSoon,
	}
	m := newTestManager(platform, store, now)

	if err := m.reconcileSource(context.Background(), "ops@example.com"); err != nil {
		t.Fatalf("reconcileSource: %v", err)
	}

	if platform.renewCalls != 1 {
		t.Errorf("renewCalls = %d, want 1", platform.renewCalls)
	}
	if platform.deleteCalls != 1 {
		t.Errorf("deleteCalls = %d, want 1 (stale id cleared)", platform.deleteCalls)
	}
	if platform.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", platform.createCalls)
	}

	rec := store.records["ops@example.com"]
	if rec.ExternalSubscriptionID == nil || *rec.ExternalSubscriptionID != "ext-sub-2" {
		t.Fatalf("replacement id not persisted: %+v", rec)
	}
}

func TestManager_RecreateIgnoresDeleteFailure(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	expiresSoon := now.Add(time.Hour)

	platform := &fakePlatform{
		createdID: "ext-sub-2",
		renewErr:  graph.ErrNotFound,
		deleteErr: errors.New("delete exploded"),
	}
	store := newFakeStore()
	store.records["ops@example.com"] = &domain.SubscriptionRecord{
		SourceID:               "ops@example.com",
		ExternalSubscriptionID: strPtr("ext-sub-1"),
		ExpiresAt:              &expiresSoon,
	}
	m := newTestManager(platform, store, now)

	if err := m.reconcileSource(context.Background(), "ops@example.com"); err != nil {
		t.Fatalf("reconcileSource returned delete error: %v", err)
	}
	if platform.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1 despite delete failure", platform.createCalls)
	}
}

func TestManager_RenewErrorPropagates(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	expiresSoon := now.Add(time.Hour)

	platform := &fakePlatform{renewErr: errors.New("upstream unavailable")}
	store := newFakeStore()
	store.records["ops@example.com"] = &domain.SubscriptionRecord{
		SourceID:               "ops@example.com",
		ExternalSubscriptionID: strPtr("ext-sub-1"),
		ExpiresAt:              &expiresSoon,
	}
	m := newTestManager(platform, store, now)

	if err := m.reconcileSource(context.Background(), "ops@example.com"); err == nil {
		t.Fatal("transient renew failure swallowed")
	}
	if platform.createCalls != 0 || platform.deleteCalls != 0 {
		t.Error("transient failure triggered recreation")
	}
	// State untouched; the next tick retries the renewal.
	if store.upserts != 0 {
		t.Error("failed renewal persisted state")
	}
}
