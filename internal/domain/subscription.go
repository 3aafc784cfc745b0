package domain

import "time"

// SubscriptionRecord is the persisted source of truth for one monitored
// source's push subscription. At most one external subscription id is stored
// per source; the lifecycle manager rewrites the record on every
// create/renew/recreate.
type SubscriptionRecord struct {
	SourceID               string     `json:"source_id"`
	ExternalSubscriptionID *string    `json:"external_subscription_id,omitempty"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	NotificationURL        string     `json:"notification_url"`
	ClientState            string     `json:"-"`
	UpdatedAt              time.Time  `json:"updated_at"`
}
