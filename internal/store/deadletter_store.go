package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nkapadia/mailbridge/internal/domain"
)

// DeadLetterJob moves an exhausted or poisoned job into the dead-letter
// table. This is the engine's terminal sink.
func (s *PostgresStore) DeadLetterJob(ctx context.Context, env *domain.JobEnvelope, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letters (job_id, job_type, idempotency_key, total_attempts, reason, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, env.JobID, env.JobType, env.IdempotencyKey, env.Attempt, reason, env.Payload)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, resolved bool, limit int) ([]domain.DeadLetter, error) {
	query := `
		SELECT id, job_id, job_type, idempotency_key, total_attempts, reason, payload, created_at, resolved_at, resolved_by
		FROM dead_letters`

	if resolved {
		query += " WHERE resolved_at IS NOT NULL"
	} else {
		query += " WHERE resolved_at IS NULL"
	}

	query += " ORDER BY created_at DESC"

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		err := rows.Scan(
			&dl.ID, &dl.JobID, &dl.JobType, &dl.IdempotencyKey, &dl.TotalAttempts,
			&dl.Reason, &dl.Payload, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, dl)
	}

	if letters == nil {
		letters = []domain.DeadLetter{}
	}

	return letters, nil
}

func (s *PostgresStore) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_id, job_type, idempotency_key, total_attempts, reason, payload, created_at, resolved_at, resolved_by
		FROM dead_letters WHERE id = $1
	`, id).Scan(
		&dl.ID, &dl.JobID, &dl.JobType, &dl.IdempotencyKey, &dl.TotalAttempts,
		&dl.Reason, &dl.Payload, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &dl, nil
}

func (s *PostgresStore) ResolveDeadLetter(ctx context.Context, id, resolvedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dead_letters SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter %s not found or already resolved", id)
	}
	return nil
}
