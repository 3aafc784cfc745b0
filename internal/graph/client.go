// Package graph is the outbound client for the collaboration platform:
// push-subscription management, message fetch/list, and attachment listing.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Subscription mirrors the platform's push-subscription resource.
type Subscription struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource"`
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState,omitempty"`
}

// Message is the authoritative payload for one inbound message.
type Message struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	BodyPreview      string    `json:"bodyPreview"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	HasAttachments   bool      `json:"hasAttachments"`
	From             *Address  `json:"from,omitempty"`
}

type Address struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// Sender returns the sender address, or "" when the platform omitted it.
func (m *Message) Sender() string {
	if m.From == nil {
		return ""
	}
	return m.From.EmailAddress.Address
}

type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Client is the narrow surface the rest of the system consumes.
type Client interface {
	CreateSubscription(ctx context.Context, sub Subscription) (*Subscription, error)
	RenewSubscription(ctx context.Context, id string, expires time.Time) (*Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	GetMessage(ctx context.Context, sourceID, messageID string) (*Message, error)
	ListMessagesSince(ctx context.Context, sourceID string, since time.Time) ([]Message, error)
	ListAttachments(ctx context.Context, sourceID, messageID string) ([]Attachment, error)
}

// ErrNotFound marks a resource that no longer exists upstream. For a
// subscription renewal this triggers the recreate path; for a message fetch
// it means there is nothing left to ingest.
var ErrNotFound = errors.New("resource not found")

// ErrThrottled marks a call denied by the local outbound throttle before it
// reached the platform. Throttled calls are transient.
var ErrThrottled = errors.New("request throttled")

// apiError carries a non-2xx platform response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("platform returned %d: %s", e.Status, e.Body)
}

// IsTransient reports whether an error is worth retrying: throttling, rate
// limiting, server-side failures, and transport errors. Not-found and other
// client errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return true
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	// Transport-level failure: connection refused, timeout, etc.
	return true
}
