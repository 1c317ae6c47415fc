package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"DormWatch/internal/model"
	"DormWatch/internal/retry"
)

// Skip reasons reported in Delivery.Reason.
const (
	ReasonNotConfigured = "not configured"
	ReasonNotLow        = "balance not low"
)

// Dispatcher fans a report out to the push, e-mail and chat channels. Push
// and e-mail only fire when the balance is low; chat always fires.
type Dispatcher struct {
	push  Channel
	email Channel
	chat  Channel

	pushPolicy  retry.Policy
	emailPolicy retry.Policy
	chatPolicy  retry.Policy
	sleep       retry.Sleeper

	log zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicies overrides the retry policy of each channel.
func WithPolicies(push, email, chat retry.Policy) Option {
	return func(d *Dispatcher) {
		d.pushPolicy = push
		d.emailPolicy = email
		d.chatPolicy = chat
	}
}

// WithSleeper swaps the wait function on every channel policy, including
// policies set by WithPolicies in any order.
func WithSleeper(s retry.Sleeper) Option {
	return func(d *Dispatcher) {
		d.sleep = s
	}
}

// NewDispatcher creates a Dispatcher. Any channel may be nil, which is
// treated as not configured.
func NewDispatcher(push, email, chat Channel, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		push:        push,
		email:       email,
		chat:        chat,
		pushPolicy:  retry.Chained(),
		emailPolicy: retry.Default(),
		chatPolicy:  retry.Chained(),
		log:         log.With().Str("component", "notifier").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sleep != nil {
		d.pushPolicy.Sleep = d.sleep
		d.emailPolicy.Sleep = d.sleep
		d.chatPolicy.Sleep = d.sleep
	}
	return d
}

// Dispatch delivers the report for r on every channel, in the order push,
// e-mail, chat. Failures are logged and reported in the result; they never
// abort the remaining channels.
func (d *Dispatcher) Dispatch(ctx context.Context, title string, r model.Reading) []Delivery {
	low := model.IsLow(r)
	plain := PlainBody(r)

	out := make([]Delivery, 0, 3)
	out = append(out, d.deliverIfLow(ctx, d.push, "serverchan", d.pushPolicy, low, title, plain))
	out = append(out, d.deliverIfLow(ctx, d.email, "email", d.emailPolicy, low, title, plain))
	out = append(out, d.deliver(ctx, d.chat, "telegram", d.chatPolicy, title, ChatBody(r)))
	return out
}

func (d *Dispatcher) deliverIfLow(ctx context.Context, ch Channel, fallback string, p retry.Policy, low bool, title, body string) Delivery {
	if !low {
		name := channelName(ch, fallback)
		d.log.Info().Str("channel", name).Msg("balance not low, notification skipped")
		return Delivery{Channel: name, Status: StatusSkipped, Reason: ReasonNotLow}
	}
	return d.deliver(ctx, ch, fallback, p, title, body)
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, fallback string, p retry.Policy, title, body string) Delivery {
	name := channelName(ch, fallback)
	if ch == nil || !ch.Enabled() {
		d.log.Info().Str("channel", name).Msg("channel not configured, skipped")
		return Delivery{Channel: name, Status: StatusSkipped, Reason: ReasonNotConfigured}
	}

	attempts := 0
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		d.log.Warn().Err(err).Str("channel", name).Int("attempt", attempt).Dur("wait", wait).Msg("send failed, retrying")
	}
	err := p.Do(ctx, func(ctx context.Context) error {
		attempts++
		return ch.Send(ctx, title, body)
	})
	if err != nil {
		derr := &DeliveryError{Channel: name, Attempts: attempts, Err: err}
		d.log.Error().Err(derr).Str("channel", name).Msg("notification failed")
		return Delivery{Channel: name, Status: StatusFailed, Attempts: attempts, Err: derr}
	}
	d.log.Info().Str("channel", name).Int("attempts", attempts).Msg("notification sent")
	return Delivery{Channel: name, Status: StatusSent, Attempts: attempts}
}

func channelName(ch Channel, fallback string) string {
	if ch == nil {
		return fallback
	}
	return ch.Name()
}
