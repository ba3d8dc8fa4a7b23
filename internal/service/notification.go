package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/ReviewLoop/internal/port/messagequeue"
	"github.com/Strob0t/ReviewLoop/internal/port/notifier"
	"github.com/Strob0t/ReviewLoop/internal/resilience"
)

// NotificationService turns lifecycle events into human notifications.
// It subscribes to the build subjects and pushes through the configured
// notifier, guarded by a circuit breaker so a dead provider cannot back
// up event consumption.
type NotificationService struct {
	notifier notifier.Notifier
	breaker  *resilience.Breaker
	mq       messagequeue.Queue
	stops    []func()
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(n notifier.Notifier, breaker *resilience.Breaker, mq messagequeue.Queue) *NotificationService {
	return &NotificationService{notifier: n, breaker: breaker, mq: mq}
}

// Start subscribes to the subjects that warrant human attention.
func (s *NotificationService) Start(ctx context.Context) error {
	subjects := []string{
		messagequeue.SubjectBuildSubmitted,
		messagequeue.SubjectBuildApproved,
	}
	for _, subject := range subjects {
		stop, err := s.mq.Subscribe(ctx, subject, s.handle)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.stops = append(s.stops, stop)
	}
	return nil
}

// Stop cancels all subscriptions.
func (s *NotificationService) Stop() {
	for _, stop := range s.stops {
		stop()
	}
	s.stops = nil
}

func (s *NotificationService) handle(subject string, data []byte) error {
	var ev buildEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		// Drop malformed payloads instead of redelivering them forever.
		slog.Error("decode build event", "subject", subject, "error", err)
		return nil
	}

	n, ok := s.notificationFor(subject, ev)
	if !ok {
		return nil
	}

	err := s.breaker.Execute(func() error {
		return s.notifier.Send(context.Background(), n)
	})
	if err != nil {
		slog.Error("send notification", "subject", subject, "build_id", ev.BuildID, "error", err)
		// Swallow the error: the breaker handles provider outages and
		// a notification is not worth infinite redelivery.
	}
	return nil
}

func (s *NotificationService) notificationFor(subject string, ev buildEvent) (notifier.Notification, bool) {
	switch subject {
	case messagequeue.SubjectBuildSubmitted:
		if !ev.RequiresApproval {
			return notifier.Notification{}, false
		}
		return notifier.Notification{
			Title: fmt.Sprintf("Build %s needs human approval", ev.BuildID),
			Message: fmt.Sprintf("Project %s, iteration %d.\nReason: %s",
				ev.ProjectID, ev.IterationCount, ev.ApprovalReason),
			Level:  "warning",
			Source: "build.guardrail",
		}, true
	case messagequeue.SubjectBuildApproved:
		return notifier.Notification{
			Title:   fmt.Sprintf("Build %s approved", ev.BuildID),
			Message: fmt.Sprintf("Project %s approved by %s.", ev.ProjectID, ev.ApprovedBy),
			Level:   "info",
			Source:  "build.approved",
		}, true
	}
	return notifier.Notification{}, false
}
