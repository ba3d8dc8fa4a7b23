// Package messagequeue defines the event bus port used to announce
// build lifecycle changes to interested consumers.
package messagequeue

import "context"

// Subjects published by the engine.
const (
	SubjectBuildSubmitted  = "builds.submitted"
	SubjectBuildApproved   = "builds.approved"
	SubjectReviewQueued    = "reviews.queued"
	SubjectReviewDispatch  = "reviews.dispatched"
	SubjectReviewVerdict   = "reviews.verdict"
	SubjectRevisionCreated = "reviews.revision"
)

// Handler consumes one message. A non-nil error causes redelivery.
type Handler func(subject string, data []byte) error

// Queue publishes and subscribes to lifecycle events.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, h Handler) (func(), error)
	Close() error
}
