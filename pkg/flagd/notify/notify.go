// Package notify delivers moderator notifications. Delivery runs outside the
// flag transaction and its failures are logged, never returned to the flagger.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Detail is one labelled fact shown in a notification.
type Detail struct {
	Key   string
	Value string
}

// Message is a resolved notification: recipients, sender and rendered text.
type Message struct {
	To      []string
	From    string
	Subject string
	Body    string
	Details []Detail
}

// Notifier is the transport collaborator.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "moderator notification", "to", strings.Join(msg.To, ","), "subject", msg.Subject)
	return nil
}

// Multi sends every message through each notifier in turn.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
