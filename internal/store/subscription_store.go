package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nkapadia/mailbridge/internal/domain"
)

// GetSubscriptionRecord returns the subscription record for a monitored
// source, or nil if none has been created yet.
func (s *PostgresStore) GetSubscriptionRecord(ctx context.Context, sourceID string) (*domain.SubscriptionRecord, error) {
	var rec domain.SubscriptionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT source_id, external_subscription_id, expires_at, notification_url, client_state, updated_at
		FROM subscription_records WHERE source_id = $1
	`, sourceID).Scan(
		&rec.SourceID, &rec.ExternalSubscriptionID, &rec.ExpiresAt,
		&rec.NotificationURL, &rec.ClientState, &rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription record: %w", err)
	}
	return &rec, nil
}

// UpsertSubscriptionRecord creates or rewrites the record for a source.
func (s *PostgresStore) UpsertSubscriptionRecord(ctx context.Context, rec *domain.SubscriptionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscription_records (source_id, external_subscription_id, expires_at, notification_url, client_state, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (source_id) DO UPDATE SET
			external_subscription_id = EXCLUDED.external_subscription_id,
			expires_at = EXCLUDED.expires_at,
			notification_url = EXCLUDED.notification_url,
			client_state = EXCLUDED.client_state,
			updated_at = NOW()
	`, rec.SourceID, rec.ExternalSubscriptionID, rec.ExpiresAt, rec.NotificationURL, rec.ClientState)
	if err != nil {
		return fmt.Errorf("upserting subscription record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSubscriptionRecords(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_id, external_subscription_id, expires_at, notification_url, client_state, updated_at
		FROM subscription_records
		ORDER BY source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying subscription records: %w", err)
	}
	defer rows.Close()

	var records []domain.SubscriptionRecord
	for rows.Next() {
		var rec domain.SubscriptionRecord
		err := rows.Scan(
			&rec.SourceID, &rec.ExternalSubscriptionID, &rec.ExpiresAt,
			&rec.NotificationURL, &rec.ClientState, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription record: %w", err)
		}
		records = append(records, rec)
	}

	if records == nil {
		records = []domain.SubscriptionRecord{}
	}

	return records, nil
}

// FindSourceBySubscriptionID maps an inbound notification's external
// subscription id back to the monitored source it belongs to. Returns ""
// when no record matches.
func (s *PostgresStore) FindSourceBySubscriptionID(ctx context.Context, externalID string) (string, error) {
	var sourceID string
	err := s.pool.QueryRow(ctx, `
		SELECT source_id FROM subscription_records WHERE external_subscription_id = $1
	`, externalID).Scan(&sourceID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("resolving subscription id: %w", err)
	}
	return sourceID, nil
}
