package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "reviewloop"

// Metrics holds the engine's metric instruments.
type Metrics struct {
	BuildsIngested      metric.Int64Counter
	ReviewsEnqueued     metric.Int64Counter
	ReviewsDispatched   metric.Int64Counter
	DispatchRateLimited metric.Int64Counter
	DispatchFailed      metric.Int64Counter
	VerdictsSubmitted   metric.Int64Counter
	BuildsApproved      metric.Int64Counter
	CycleDuration       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.BuildsIngested, err = meter.Int64Counter("reviewloop.builds.ingested",
		metric.WithDescription("Number of builds ingested"))
	if err != nil {
		return nil, err
	}

	m.ReviewsEnqueued, err = meter.Int64Counter("reviewloop.reviews.enqueued",
		metric.WithDescription("Number of review queue entries created"))
	if err != nil {
		return nil, err
	}

	m.ReviewsDispatched, err = meter.Int64Counter("reviewloop.reviews.dispatched",
		metric.WithDescription("Number of reviews dispatched to inspectors"))
	if err != nil {
		return nil, err
	}

	m.DispatchRateLimited, err = meter.Int64Counter("reviewloop.dispatch.rate_limited",
		metric.WithDescription("Number of dispatches deferred by the rate limiter"))
	if err != nil {
		return nil, err
	}

	m.DispatchFailed, err = meter.Int64Counter("reviewloop.dispatch.failed",
		metric.WithDescription("Number of failed dispatch attempts"))
	if err != nil {
		return nil, err
	}

	m.VerdictsSubmitted, err = meter.Int64Counter("reviewloop.verdicts.submitted",
		metric.WithDescription("Number of inspection verdicts stored"))
	if err != nil {
		return nil, err
	}

	m.BuildsApproved, err = meter.Int64Counter("reviewloop.builds.approved",
		metric.WithDescription("Number of builds approved for deploy"))
	if err != nil {
		return nil, err
	}

	m.CycleDuration, err = meter.Float64Histogram("reviewloop.dispatch.cycle_seconds",
		metric.WithDescription("Dispatch cycle duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
