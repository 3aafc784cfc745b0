package domain

import "time"

// WatermarkState tracks how far the polling reconciler has confirmed it has
// processed past for one monitored source. HighWaterTimestamp never
// regresses across successful polling cycles.
type WatermarkState struct {
	SourceID           string    `json:"source_id"`
	LastPolledAt       time.Time `json:"last_polled_at"`
	HighWaterTimestamp time.Time `json:"high_water_timestamp"`
}
