// Package notify delivers alert messages. Delivery is best effort: callers
// log failures and never retry.
package notify

import (
	"context"
	"errors"
)

// Message is one outbound notification.
type Message struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Notifier sends messages to some audience.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, Message) error { return nil }

var (
	_ Notifier = Multi(nil)
	_ Notifier = Nop{}
)
