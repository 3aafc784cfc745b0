package domain

// NotificationBatch is the body of an inbound push notification POST.
type NotificationBatch struct {
	Value []EventNotification `json:"value"`
}

// EventNotification is one wire-level change notification entry. It is never
// persisted; the webhook receiver consumes it once to produce a JobEnvelope.
type EventNotification struct {
	SubscriptionID string                `json:"subscriptionId"`
	ClientState    string                `json:"clientState"`
	ChangeType     string                `json:"changeType"`
	Resource       string                `json:"resource"`
	ResourceData   *NotificationResource `json:"resourceData,omitempty"`
	TenantID       string                `json:"tenantId,omitempty"`
}

// NotificationResource is the structured resource identifier some providers
// attach to a notification entry.
type NotificationResource struct {
	ID string `json:"id"`
}
