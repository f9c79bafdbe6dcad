package tracking

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

// LocationInput is a position report for a bus. TripID is required when
// locations are trip scoped and ignored otherwise.
type LocationInput struct {
	BusID        string
	TripID       string
	Latitude     float64
	Longitude    float64
	LocationName string
	Status       string
}

// Current pairs the latest location of a bus with its active trip. Trip is
// nil when locations are not trip scoped.
type Current struct {
	Trip     *models.Trip    `json:"trip,omitempty"`
	Location models.Location `json:"location"`
}

// UpsertLocation overwrites the bus's location slot with in and stamps it with
// the current time.
func (e *Engine) UpsertLocation(ctx context.Context, in LocationInput) (*models.Location, error) {
	loc, err := e.prepareLocation(ctx, in)
	if err != nil {
		return nil, err
	}

	stored, err := e.store.UpsertLocation(ctx, loc)
	if err != nil {
		e.log(ctx).WithError(err).WithField("bus_id", loc.BusID).Error("UpsertLocation: store write failed")
		return nil, err
	}
	e.metrics.LocationUpserted()
	if err := e.publisher.PublishLocation(ctx, *stored); err != nil {
		e.log(ctx).WithError(err).WithField("bus_id", stored.BusID).Warn("UpsertLocation: publish failed")
	}
	e.log(ctx).WithFields(logrus.Fields{
		"bus_id":  stored.BusID,
		"trip_id": stored.TripID,
		"status":  stored.Status,
	}).Debug("Location updated")
	return stored, nil
}

func (e *Engine) prepareLocation(ctx context.Context, in LocationInput) (*models.Location, error) {
	busID := strings.TrimSpace(in.BusID)
	name := strings.TrimSpace(in.LocationName)
	if busID == "" || name == "" {
		return nil, apperr.Validation("missing_fields", "busId and locationName are required")
	}
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return nil, apperr.Validation("invalid_coordinates", "latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	status := strings.ToLower(strings.TrimSpace(in.Status))
	switch status {
	case "":
		status = models.StatusMoving
	case models.StatusMoving, models.StatusStopped:
	default:
		return nil, apperr.Validation("invalid_status", "status must be %q or %q", models.StatusMoving, models.StatusStopped)
	}

	if _, err := e.store.FindBus(ctx, busID); err != nil {
		return nil, err
	}

	now := e.now()
	loc := &models.Location{
		BusID:        busID,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		LocationName: name,
		Status:       status,
		UpdatedAt:    now,
	}
	if !e.policy.TripScoped() {
		return loc, nil
	}

	tripID := strings.TrimSpace(in.TripID)
	if tripID == "" {
		return nil, apperr.Validation("missing_fields", "tripId is required")
	}
	trip, err := e.store.FindTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.BusID != busID {
		return nil, apperr.NotFound("trip_not_found", "trip %s does not belong to bus %s", tripID, busID)
	}
	start, end, err := e.window(trip)
	if err != nil {
		return nil, apperr.Internal(err, "trip %s has an unreadable schedule", trip.ID)
	}
	if now.Before(start) || now.After(end) {
		return nil, apperr.Validation("trip_not_active", "trip not active")
	}
	loc.TripID = trip.ID
	return loc, nil
}

// CurrentLocation resolves the latest location of a bus. When locations are
// trip scoped the bus must have exactly one trip today; two or more is
// reported as an ambiguous state rather than guessed at.
func (e *Engine) CurrentLocation(ctx context.Context, busID string) (*Current, error) {
	current, outcome, err := e.resolve(ctx, strings.TrimSpace(busID))
	e.metrics.LocationResolved(outcome)
	return current, err
}

func (e *Engine) resolve(ctx context.Context, busID string) (*Current, string, error) {
	if busID == "" {
		return nil, "invalid", apperr.Validation("missing_fields", "busId is required")
	}

	current := &Current{}
	if e.policy.TripScoped() {
		today := e.today()
		trips, err := e.store.FindTrips(ctx, store.TripFilter{BusID: busID, Date: today})
		if err != nil {
			return nil, "error", err
		}
		switch len(trips) {
		case 0:
			return nil, "no_trip", apperr.NotFound("no_trip_today", "no trip today for this bus")
		case 1:
			current.Trip = &trips[0]
		default:
			e.log(ctx).WithFields(logrus.Fields{
				"bus_id": busID,
				"date":   today,
				"trips":  len(trips),
			}).Warn("CurrentLocation: multiple trips today")
			return nil, "ambiguous", apperr.Ambiguous("multiple_trips_today",
				"multiple trips today, cannot determine which is current")
		}
	}

	loc, err := e.store.LatestLocation(ctx, busID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, "no_location", err
		}
		return nil, "error", err
	}
	current.Location = *loc
	return current, "ok", nil
}
