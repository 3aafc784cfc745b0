package domain

import (
	"encoding/json"
	"time"
)

// Job outcome statuses reported by handlers.
const (
	StatusCompleted = "completed"
	StatusRetryable = "retryable"
	StatusPoisoned  = "poisoned"
)

// JobEnvelope is the wire format for a queued job. The same envelope is
// serialized to the durable queue and passed through the in-memory queue.
type JobEnvelope struct {
	JobID          string          `json:"jobId"`
	JobType        string          `json:"jobType"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"maxAttempts"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// JobOutcome is produced once per handler invocation. It lives only for the
// processing cycle that generated it; the envelope's attempt counter and the
// queue's delivery state are the durable record.
type JobOutcome struct {
	Status       string
	ErrorMessage string
	Duration     time.Duration
}

func CompletedOutcome() JobOutcome {
	return JobOutcome{Status: StatusCompleted}
}

func RetryableOutcome(err error) JobOutcome {
	out := JobOutcome{Status: StatusRetryable}
	if err != nil {
		out.ErrorMessage = err.Error()
	}
	return out
}

func PoisonedOutcome(reason string) JobOutcome {
	return JobOutcome{Status: StatusPoisoned, ErrorMessage: reason}
}
