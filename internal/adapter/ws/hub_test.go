package ws

import (
	"context"
	"testing"

	"github.com/Strob0t/ReviewLoop/internal/port/messagequeue"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub()

	// Broadcast with no connections must not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "build.submitted",
		Payload: []byte(`{"build_id":"b1"}`),
	})
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel})

	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

type stubQueue struct {
	handlers map[string]messagequeue.Handler
	cancels  int
}

func (q *stubQueue) Publish(_ context.Context, subject string, data []byte) error {
	if h, ok := q.handlers[subject]; ok {
		return h(subject, data)
	}
	return nil
}

func (q *stubQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() { q.cancels++ }, nil
}

func (q *stubQueue) Close() error { return nil }

func TestBridgeSubscribesAllSubjects(t *testing.T) {
	q := &stubQueue{}
	b := NewBridge(NewHub(), q)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	if len(q.handlers) != len(subjectEventTypes) {
		t.Fatalf("expected %d subscriptions, got %d", len(subjectEventTypes), len(q.handlers))
	}

	b.Stop()
	if q.cancels != len(subjectEventTypes) {
		t.Fatalf("expected %d cancels, got %d", len(subjectEventTypes), q.cancels)
	}
}

func TestBridgeDropsMalformedPayload(t *testing.T) {
	q := &stubQueue{}
	b := NewBridge(NewHub(), q)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start bridge: %v", err)
	}

	// A handler error would trigger redelivery; malformed JSON must not.
	if err := q.Publish(context.Background(), messagequeue.SubjectBuildSubmitted, []byte("{broken")); err != nil {
		t.Fatalf("expected nil error for malformed payload, got %v", err)
	}
}
