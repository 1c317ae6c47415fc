// Package notifier delivers balance reports over push, e-mail and Telegram.
package notifier

import (
	"context"
	"fmt"
)

// Channel is one notification delivery mechanism.
type Channel interface {
	Name() string
	// Enabled reports whether the channel has the configuration it needs.
	Enabled() bool
	Send(ctx context.Context, title, body string) error
}

// Status is the outcome of one channel in a dispatch.
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Delivery records what happened on one channel.
type Delivery struct {
	Channel  string
	Status   Status
	Attempts int
	Reason   string
	Err      error
}

// DeliveryError reports a channel that failed after all retries.
type DeliveryError struct {
	Channel  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
