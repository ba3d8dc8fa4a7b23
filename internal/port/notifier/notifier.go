// Package notifier defines the outbound notification port and the
// provider registry.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is missing required
// configuration such as credentials or a channel id.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is one message pushed to a human channel.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`  // "info", "warning", "error"
	Source  string `json:"source"` // e.g. "build.guardrail", "build.approved"
}

// Notifier delivers notifications to one provider.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
