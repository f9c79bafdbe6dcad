// Package tracking keeps trips and location records consistent: it validates
// trip scheduling, enforces the per-bus trip uniqueness of the configured
// policy and resolves a bus's current location against its active trip.
//
// The engine holds no mutable state of its own. Every invariant is either a
// check against the store or a unique index in the store, and store conflicts
// are surfaced to the caller rather than retried.
package tracking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

// Store is the subset of store.Store the engine needs.
type Store interface {
	store.Buses
	store.Trips
	store.Locations
}

// Publisher receives committed writes. Failures are logged, not returned.
type Publisher interface {
	PublishTrip(ctx context.Context, trip models.Trip) error
	PublishLocation(ctx context.Context, loc models.Location) error
}

// Metrics receives engine outcomes.
type Metrics interface {
	TripCreated()
	TripRejected(reason string)
	LocationUpserted()
	LocationResolved(outcome string)
}

type Options struct {
	Policy Policy
	// Zone is the service's local reference for "today"; nil means UTC.
	Zone *time.Location
	// Now defaults to time.Now.
	Now       func() time.Time
	Publisher Publisher
	Metrics   Metrics
}

type Engine struct {
	store     Store
	policy    Policy
	zone      *time.Location
	now       func() time.Time
	publisher Publisher
	metrics   Metrics
}

func New(s Store, opts Options) *Engine {
	e := &Engine{
		store:     s,
		policy:    opts.Policy,
		zone:      opts.Zone,
		now:       opts.Now,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
	}
	if e.policy == "" {
		e.policy = StrictDaily
	}
	if e.zone == nil {
		e.zone = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.publisher == nil {
		e.publisher = nopPublisher{}
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// today returns the current service date.
func (e *Engine) today() string {
	return e.now().In(e.zone).Format(models.DateLayout)
}

func (e *Engine) log(ctx context.Context) *logrus.Entry {
	return logrus.WithContext(ctx).WithField("policy", string(e.policy))
}

type nopPublisher struct{}

func (nopPublisher) PublishTrip(context.Context, models.Trip) error         { return nil }
func (nopPublisher) PublishLocation(context.Context, models.Location) error { return nil }

type nopMetrics struct{}

func (nopMetrics) TripCreated()            {}
func (nopMetrics) TripRejected(string)     {}
func (nopMetrics) LocationUpserted()       {}
func (nopMetrics) LocationResolved(string) {}
