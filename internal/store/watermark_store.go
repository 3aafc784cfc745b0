package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nkapadia/mailbridge/internal/domain"
)

// GetWatermark returns the polling watermark for a source, or nil if the
// source has never completed a polling cycle.
func (s *PostgresStore) GetWatermark(ctx context.Context, sourceID string) (*domain.WatermarkState, error) {
	var wm domain.WatermarkState
	err := s.pool.QueryRow(ctx, `
		SELECT source_id, last_polled_at, high_water_timestamp
		FROM watermarks WHERE source_id = $1
	`, sourceID).Scan(&wm.SourceID, &wm.LastPolledAt, &wm.HighWaterTimestamp)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying watermark: %w", err)
	}
	return &wm, nil
}

// AdvanceWatermark records a completed polling cycle. The high-water
// timestamp never regresses: GREATEST keeps the stored value when the new
// cycle observed nothing newer.
func (s *PostgresStore) AdvanceWatermark(ctx context.Context, sourceID string, polledAt, highWater time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watermarks (source_id, last_polled_at, high_water_timestamp)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id) DO UPDATE SET
			last_polled_at = EXCLUDED.last_polled_at,
			high_water_timestamp = GREATEST(watermarks.high_water_timestamp, EXCLUDED.high_water_timestamp)
	`, sourceID, polledAt, highWater)
	if err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}
	return nil
}
