package domain

import "time"

// Message is an ingested inbound message record. (source_id, external_id) is
// unique in the store; that constraint is the authoritative dedup check.
type Message struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	ExternalID  string    `json:"external_id"`
	Subject     string    `json:"subject"`
	Sender      string    `json:"sender,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	BodyPreview string    `json:"body_preview,omitempty"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Attachment is captured metadata for one message attachment.
type Attachment struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	ExternalID  string    `json:"external_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
