package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nkapadia/mailbridge/internal/domain"
)

// InsertMessage persists an ingested message. The (source_id, external_id)
// uniqueness constraint makes this the authoritative idempotency check:
// a duplicate insert is a no-op and returns false.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *domain.Message) (bool, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (source_id, external_id, subject, sender, received_at, body_preview)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, external_id) DO NOTHING
		RETURNING id, ingested_at
	`, msg.SourceID, msg.ExternalID, msg.Subject, msg.Sender, msg.ReceivedAt, msg.BodyPreview).Scan(
		&msg.ID, &msg.IngestedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Conflict: another path already ingested this message.
			return false, nil
		}
		return false, fmt.Errorf("inserting message: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_id, external_id, subject, sender, received_at, body_preview, ingested_at
		FROM messages WHERE id = $1
	`, id).Scan(
		&msg.ID, &msg.SourceID, &msg.ExternalID, &msg.Subject,
		&msg.Sender, &msg.ReceivedAt, &msg.BodyPreview, &msg.IngestedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return &msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sourceID string, limit int) ([]domain.Message, error) {
	query := `SELECT id, source_id, external_id, subject, sender, received_at, body_preview, ingested_at FROM messages`
	args := []interface{}{}
	argIdx := 1

	if sourceID != "" {
		query += fmt.Sprintf(" WHERE source_id = $%d", argIdx)
		args = append(args, sourceID)
		argIdx++
	}

	query += " ORDER BY received_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		err := rows.Scan(
			&msg.ID, &msg.SourceID, &msg.ExternalID, &msg.Subject,
			&msg.Sender, &msg.ReceivedAt, &msg.BodyPreview, &msg.IngestedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	return messages, nil
}

// InsertAttachment records captured attachment metadata for a message.
func (s *PostgresStore) InsertAttachment(ctx context.Context, att *domain.Attachment) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO attachments (message_id, external_id, name, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, att.MessageID, att.ExternalID, att.Name, att.ContentType, att.SizeBytes).Scan(
		&att.ID, &att.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, messageID string) ([]domain.Attachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, external_id, name, content_type, size_bytes, created_at
		FROM attachments WHERE message_id = $1
		ORDER BY created_at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var att domain.Attachment
		err := rows.Scan(
			&att.ID, &att.MessageID, &att.ExternalID, &att.Name,
			&att.ContentType, &att.SizeBytes, &att.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	if attachments == nil {
		attachments = []domain.Attachment{}
	}

	return attachments, nil
}
