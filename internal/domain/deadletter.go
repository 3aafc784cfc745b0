package domain

import (
	"encoding/json"
	"time"
)

// DeadLetter is the terminal sink record for a job that exhausted its
// retries or is permanently unprocessable.
type DeadLetter struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	JobType        string          `json:"job_type"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	TotalAttempts  int             `json:"total_attempts"`
	Reason         string          `json:"reason"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy     *string         `json:"resolved_by,omitempty"`
}
