// Package events publishes point events to Kafka for downstream consumers.
package events

import "time"

// EventPointsAwarded is the event_type header value for accepted activities.
const EventPointsAwarded = "points.awarded"

// DefaultTopic carries all point events.
const DefaultTopic = "points_events"

// PointsAwarded is emitted after an activity is accepted into the ledger.
// TotalPoints and Level reflect the ledger immediately after the award.
type PointsAwarded struct {
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
	SubjectRef  string    `json:"subject_ref,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	TotalPoints int       `json:"total_points"`
	Level       int       `json:"level"`
}
