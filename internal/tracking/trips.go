package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

// TripInput is a request to schedule a trip. Date is optional and defaults to
// today in the service zone.
type TripInput struct {
	BusID     string
	Date      string
	StartTime string
	EndTime   string
}

// CreateTrip validates in, persists the trip and appends it to the bus's trip
// list.
func (e *Engine) CreateTrip(ctx context.Context, in TripInput) (*models.Trip, error) {
	trip, err := e.createTrip(ctx, in)
	if err != nil {
		e.metrics.TripRejected(apperr.KindOf(err).String())
		return nil, err
	}
	e.metrics.TripCreated()
	if err := e.publisher.PublishTrip(ctx, *trip); err != nil {
		e.log(ctx).WithError(err).WithField("trip_id", trip.ID).Warn("CreateTrip: publish failed")
	}
	return trip, nil
}

func (e *Engine) createTrip(ctx context.Context, in TripInput) (*models.Trip, error) {
	busID := strings.TrimSpace(in.BusID)
	if busID == "" || strings.TrimSpace(in.StartTime) == "" || strings.TrimSpace(in.EndTime) == "" {
		return nil, apperr.Validation("missing_fields", "busId, startTime and endTime are required")
	}

	start, err := ParseClock(in.StartTime)
	if err != nil {
		return nil, apperr.Validation("invalid_time", "startTime: %v", err)
	}
	end, err := ParseClock(in.EndTime)
	if err != nil {
		return nil, apperr.Validation("invalid_time", "endTime: %v", err)
	}
	if start >= end {
		return nil, apperr.Validation("invalid_window", "startTime %s must be before endTime %s", start, end)
	}

	date := e.today()
	if in.Date != "" {
		day, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(in.Date), e.zone)
		if err != nil {
			return nil, apperr.Validation("invalid_date", "date must be formatted YYYY-MM-DD")
		}
		date = day.Format(models.DateLayout)
	}

	bus, err := e.store.FindBus(ctx, busID)
	if err != nil {
		return nil, err
	}

	if e.policy == LegacyPair {
		if err := e.checkDuplicateWindow(ctx, bus.ID, start, end); err != nil {
			return nil, err
		}
	}

	now := e.now()
	trip := &models.Trip{
		BusID:     bus.ID,
		Date:      date,
		StartTime: start.String(),
		EndTime:   end.String(),
		Slot:      e.policy.slot(date, start, end),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.InsertTrip(ctx, trip); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			if e.policy == LegacyPair {
				return nil, apperr.Conflict("trip_conflict", "bus already has a trip from %s to %s", start, end)
			}
			return nil, apperr.Conflict("trip_conflict", "bus already has a trip on %s", date)
		}
		return nil, err
	}

	// A trip the bus does not list must not hold its slot.
	if err := e.store.AppendBusTrip(ctx, bus.ID, trip.ID); err != nil {
		fields := logrus.Fields{"bus_id": bus.ID, "trip_id": trip.ID}
		if derr := e.store.DeleteTrip(ctx, trip.ID); derr != nil {
			e.log(ctx).WithError(derr).WithFields(fields).Error("CreateTrip: trip stored but not linked to bus")
		} else {
			e.log(ctx).WithError(err).WithFields(fields).Warn("CreateTrip: link failed, trip removed")
		}
		return nil, fmt.Errorf("link trip to bus: %w", err)
	}

	e.log(ctx).WithFields(logrus.Fields{
		"bus_id":  bus.ID,
		"trip_id": trip.ID,
		"date":    trip.Date,
	}).Info("Trip created")
	return trip, nil
}

func (e *Engine) checkDuplicateWindow(ctx context.Context, busID string, start, end Clock) error {
	existing, err := e.store.FindTrips(ctx, store.TripFilter{BusID: busID})
	if err != nil {
		return err
	}
	for _, t := range existing {
		s, errS := ParseClock(t.StartTime)
		f, errE := ParseClock(t.EndTime)
		if errS == nil && errE == nil && s == start && f == end {
			return apperr.Conflict("trip_conflict", "bus already has a trip from %s to %s", start, end)
		}
	}
	return nil
}

// ListTrips returns every trip of the bus.
func (e *Engine) ListTrips(ctx context.Context, busID string) ([]models.Trip, error) {
	if _, err := e.store.FindBus(ctx, busID); err != nil {
		return nil, err
	}
	return e.store.FindTrips(ctx, store.TripFilter{BusID: busID})
}

// TodayTrips returns the bus's trips on the current service date.
func (e *Engine) TodayTrips(ctx context.Context, busID string) ([]models.Trip, error) {
	if _, err := e.store.FindBus(ctx, busID); err != nil {
		return nil, err
	}
	return e.store.FindTrips(ctx, store.TripFilter{BusID: busID, Date: e.today()})
}

// PurgeTrips deletes the trips of one bus, or every trip when busID is empty,
// and clears the matching bus trip lists.
func (e *Engine) PurgeTrips(ctx context.Context, busID string) (int64, error) {
	if busID != "" {
		if _, err := e.store.FindBus(ctx, busID); err != nil {
			return 0, err
		}
	}
	n, err := e.store.DeleteTrips(ctx, store.TripFilter{BusID: busID})
	if err != nil {
		return 0, err
	}
	if err := e.store.ClearBusTrips(ctx, busID); err != nil {
		return n, err
	}
	e.log(ctx).WithFields(logrus.Fields{"bus_id": busID, "deleted": n}).Info("Trips purged")
	return n, nil
}

// window returns the instants the trip starts and ends in the service zone.
func (e *Engine) window(t *models.Trip) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(models.DateLayout, t.Date, e.zone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := ParseClock(t.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseClock(t.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.On(day), end.On(day), nil
}
