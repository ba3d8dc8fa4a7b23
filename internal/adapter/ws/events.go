package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/ReviewLoop/internal/port/messagequeue"
)

// subjectEventTypes maps broker subjects to the event types clients see.
var subjectEventTypes = map[string]string{
	messagequeue.SubjectBuildSubmitted:  "build.submitted",
	messagequeue.SubjectBuildApproved:   "build.approved",
	messagequeue.SubjectReviewQueued:    "review.queued",
	messagequeue.SubjectReviewDispatch:  "review.dispatched",
	messagequeue.SubjectReviewVerdict:   "review.verdict",
	messagequeue.SubjectRevisionCreated: "review.revision",
}

// Bridge relays review lifecycle events from the message queue to all
// connected WebSocket clients.
type Bridge struct {
	hub     *Hub
	mq      messagequeue.Queue
	cancels []func()
}

// NewBridge creates a bridge that feeds the given hub.
func NewBridge(hub *Hub, mq messagequeue.Queue) *Bridge {
	return &Bridge{hub: hub, mq: mq}
}

// Start subscribes to every lifecycle subject. Subscriptions live until
// Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	for subject := range subjectEventTypes {
		cancel, err := b.mq.Subscribe(ctx, subject, b.relay)
		if err != nil {
			b.Stop()
			return err
		}
		b.cancels = append(b.cancels, cancel)
	}
	return nil
}

// Stop cancels all subscriptions.
func (b *Bridge) Stop() {
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// relay forwards one broker message to the hub. Malformed payloads are
// dropped rather than redelivered; the stream is advisory.
func (b *Bridge) relay(subject string, data []byte) error {
	eventType, ok := subjectEventTypes[subject]
	if !ok {
		return nil
	}
	if !json.Valid(data) {
		slog.Warn("dropping malformed event payload", "subject", subject)
		return nil
	}
	b.hub.Broadcast(context.Background(), Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
	return nil
}
