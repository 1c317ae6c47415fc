// Package recorder keeps a queryable history of readings and notification
// deliveries alongside the JSON series.
package recorder

import "time"

// ReadingEvent is one fetched balance pair.
type ReadingEvent struct {
	RunID string
	At    time.Time
	Light float64
	AC    float64
	Low   bool
}

// DeliveryEvent is the outcome of one notification channel in a run.
type DeliveryEvent struct {
	RunID    string
	At       time.Time
	Channel  string
	Status   string // "sent", "skipped" or "failed"
	Attempts int
	Detail   string
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordReading(evt *ReadingEvent) error
	RecordDelivery(evt *DeliveryEvent) error
	Close() error
}
