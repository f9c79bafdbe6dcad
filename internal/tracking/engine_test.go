package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
	"bus_tracker/internal/store/memstore"
)

type recorder struct {
	mu        sync.Mutex
	trips     []models.Trip
	locations []models.Location
	rejected  []string
	resolved  []string
	fail      bool
}

func (r *recorder) PublishTrip(_ context.Context, t models.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.trips = append(r.trips, t)
	return nil
}

func (r *recorder) PublishLocation(_ context.Context, l models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.locations = append(r.locations, l)
	return nil
}

func (r *recorder) TripCreated()      {}
func (r *recorder) LocationUpserted() {}

func (r *recorder) TripRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

func (r *recorder) LocationResolved(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, outcome)
}

type fixture struct {
	store  *memstore.Store
	engine *Engine
	rec    *recorder
	now    time.Time
	bus    *models.Bus
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		rec:   &recorder{},
		now:   time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	f.engine = New(f.store, Options{
		Policy:    policy,
		Now:       func() time.Time { return f.now },
		Publisher: f.rec,
		Metrics:   f.rec,
	})
	f.bus = &models.Bus{BusName: "Express 1", BusRegNo: "NB-1234", RouteID: "r1", OperatorID: "u1"}
	require.NoError(t, f.store.CreateBus(context.Background(), f.bus))
	return f
}

func TestCreateTripOncePerDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)

	t1, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: "2025-01-01", StartTime: "8:00 AM", EndTime: "12:00 PM"})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", t1.Date)
	assert.Equal(t, f.bus.ID, t1.BusID)

	_, err = f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: "2025-01-01", StartTime: "1:00 PM", EndTime: "5:00 PM"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	t2, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: "2025-01-02", StartTime: "8:00 AM", EndTime: "12:00 PM"})
	require.NoError(t, err)
	assert.NotEqual(t, t1.ID, t2.ID)

	bus, err := f.store.FindBus(ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{t1.ID, t2.ID}, bus.Trips)

	assert.Len(t, f.rec.trips, 2)
	assert.Equal(t, []string{"conflict"}, f.rec.rejected)
}

// unlinkedStore stores trips but cannot add them to a bus.
type unlinkedStore struct {
	*memstore.Store
	linkErr error
}

func (s *unlinkedStore) AppendBusTrip(ctx context.Context, busID, tripID string) error {
	if s.linkErr != nil {
		return s.linkErr
	}
	return s.Store.AppendBusTrip(ctx, busID, tripID)
}

func TestCreateTripRemovesUnlinkedTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	s := &unlinkedStore{Store: f.store, linkErr: errors.New("write conflict")}
	engine := New(s, Options{Policy: StrictDaily, Now: func() time.Time { return f.now }, Metrics: f.rec})

	in := TripInput{BusID: f.bus.ID, Date: "2025-01-01", StartTime: "8:00 AM", EndTime: "12:00 PM"}
	_, err := engine.CreateTrip(ctx, in)
	require.ErrorIs(t, err, s.linkErr)

	trips, err := f.store.FindTrips(ctx, store.TripFilter{BusID: f.bus.ID})
	require.NoError(t, err)
	assert.Empty(t, trips, "failed create left a trip behind")

	s.linkErr = nil
	trip, err := engine.CreateTrip(ctx, in)
	require.NoError(t, err, "the day's slot is still free")

	bus, err := f.store.FindBus(ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{trip.ID}, bus.Trips)
}

func TestCreateTripDefaultsToToday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	f.now = time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
	f.engine.zone = time.FixedZone("IST", 5*3600+1800)

	trip, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, StartTime: "8:00 am", EndTime: "9:15pm"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", trip.Date)
	assert.Equal(t, "8:00 AM", trip.StartTime)
	assert.Equal(t, "9:15 PM", trip.EndTime)
}

func TestCreateTripValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)

	tests := []struct {
		name string
		in   TripInput
		kind apperr.Kind
		code string
	}{
		{"missing bus", TripInput{StartTime: "8:00 AM", EndTime: "9:00 AM"}, apperr.KindValidation, "missing_fields"},
		{"missing start", TripInput{BusID: f.bus.ID, EndTime: "9:00 AM"}, apperr.KindValidation, "missing_fields"},
		{"hour out of range", TripInput{BusID: f.bus.ID, StartTime: "25:00 AM", EndTime: "9:00 AM"}, apperr.KindValidation, "invalid_time"},
		{"no meridiem", TripInput{BusID: f.bus.ID, StartTime: "8:00", EndTime: "9:00 AM"}, apperr.KindValidation, "invalid_time"},
		{"24 hour clock", TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "13:00 PM"}, apperr.KindValidation, "invalid_time"},
		{"end before start", TripInput{BusID: f.bus.ID, StartTime: "10:00 AM", EndTime: "9:00 AM"}, apperr.KindValidation, "invalid_window"},
		{"empty window", TripInput{BusID: f.bus.ID, StartTime: "9:00 AM", EndTime: "9:00 AM"}, apperr.KindValidation, "invalid_window"},
		{"bad date", TripInput{BusID: f.bus.ID, Date: "01/02/2025", StartTime: "8:00 AM", EndTime: "9:00 AM"}, apperr.KindValidation, "invalid_date"},
		{"unknown bus", TripInput{BusID: "nope", StartTime: "8:00 AM", EndTime: "9:00 AM"}, apperr.KindNotFound, "bus_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateTrip(ctx, tt.in)
			require.Error(t, err)
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.kind, ae.Kind)
			assert.Equal(t, tt.code, ae.Code)
		})
	}
}

func TestCreateTripAcrossMeridiem(t *testing.T) {
	f := newFixture(t, StrictDaily)

	// "9:00 AM" > "10:00 AM" as strings
	_, err := f.engine.CreateTrip(context.Background(), TripInput{BusID: f.bus.ID, StartTime: "9:00 AM", EndTime: "10:00 AM"})
	assert.NoError(t, err)
}

func TestLegacyPairRejectsDuplicateWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LegacyPair)

	_, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: "2025-01-01", StartTime: "8:00 AM", EndTime: "12:00 PM"})
	require.NoError(t, err)

	// same pair, different spelling and date
	_, err = f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: "2025-01-02", StartTime: "08:00am", EndTime: "12:00 pm"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// a second window on the same day is allowed under this policy
	_, err = f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: "2025-01-01", StartTime: "1:00 PM", EndTime: "5:00 PM"})
	assert.NoError(t, err)
}

func TestConcurrentTripCreationSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "12:00 PM"})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestUpsertLocationIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	trip, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "12:00 PM"})
	require.NoError(t, err)

	in := LocationInput{BusID: f.bus.ID, TripID: trip.ID, Latitude: 6.9271, Longitude: 79.8612, LocationName: "Colombo Fort", Status: "moving"}
	first, err := f.engine.UpsertLocation(ctx, in)
	require.NoError(t, err)

	f.now = f.now.Add(5 * time.Minute)
	second, err := f.engine.UpsertLocation(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, f.now, second.UpdatedAt)

	latest, err := f.store.LatestLocation(ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Equal(t, *second, *latest)
	assert.Len(t, f.rec.locations, 2)
}

func TestUpsertLocationChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	trip, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "12:00 PM"})
	require.NoError(t, err)

	other := &models.Bus{BusName: "Express 2", BusRegNo: "NB-5678"}
	require.NoError(t, f.store.CreateBus(ctx, other))

	base := LocationInput{BusID: f.bus.ID, TripID: trip.ID, Latitude: 6.9, Longitude: 79.8, LocationName: "Pettah"}

	tests := []struct {
		name   string
		mutate func(in *LocationInput)
		kind   apperr.Kind
		code   string
	}{
		{"missing trip", func(in *LocationInput) { in.TripID = "" }, apperr.KindValidation, "missing_fields"},
		{"missing name", func(in *LocationInput) { in.LocationName = " " }, apperr.KindValidation, "missing_fields"},
		{"latitude", func(in *LocationInput) { in.Latitude = 91 }, apperr.KindValidation, "invalid_coordinates"},
		{"longitude", func(in *LocationInput) { in.Longitude = -181 }, apperr.KindValidation, "invalid_coordinates"},
		{"status", func(in *LocationInput) { in.Status = "parked" }, apperr.KindValidation, "invalid_status"},
		{"unknown bus", func(in *LocationInput) { in.BusID = "nope" }, apperr.KindNotFound, "bus_not_found"},
		{"unknown trip", func(in *LocationInput) { in.TripID = "nope" }, apperr.KindNotFound, "trip_not_found"},
		{"trip of another bus", func(in *LocationInput) { in.BusID = other.ID }, apperr.KindNotFound, "trip_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := f.engine.UpsertLocation(ctx, in)
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.kind, ae.Kind)
			assert.Equal(t, tt.code, ae.Code)
		})
	}

	loc, err := f.engine.UpsertLocation(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMoving, loc.Status)
}

func TestUpsertLocationOutsideTripWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	trip, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "12:00 PM"})
	require.NoError(t, err)

	in := LocationInput{BusID: f.bus.ID, TripID: trip.ID, Latitude: 6.9, Longitude: 79.8, LocationName: "Pettah"}

	f.now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	_, err = f.engine.UpsertLocation(ctx, in)
	require.NoError(t, err, "end of window is inclusive")

	f.now = time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC)
	_, err = f.engine.UpsertLocation(ctx, in)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "trip_not_active", ae.Code)

	f.now = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	_, err = f.engine.UpsertLocation(ctx, in)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpsertLocationOnDSTChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f.engine.zone = ny
	f.now = time.Date(2025, 3, 9, 8, 30, 0, 0, ny)

	trip, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "12:00 PM"})
	require.NoError(t, err)
	require.Equal(t, "2025-03-09", trip.Date)

	in := LocationInput{BusID: f.bus.ID, TripID: trip.ID, Latitude: 40.7, Longitude: -74.0, LocationName: "Port Authority"}
	_, err = f.engine.UpsertLocation(ctx, in)
	require.NoError(t, err, "8:30 AM local is inside the window")

	f.now = time.Date(2025, 3, 9, 12, 30, 0, 0, ny)
	_, err = f.engine.UpsertLocation(ctx, in)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "trip_not_active", ae.Code)
}

func TestCurrentLocation(t *testing.T) {
	ctx := context.Background()

	t.Run("no trip today", func(t *testing.T) {
		f := newFixture(t, StrictDaily)
		_, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: "2025-01-02", StartTime: "8:00 AM", EndTime: "9:00 AM"})
		require.NoError(t, err)

		_, err = f.engine.CurrentLocation(ctx, f.bus.ID)
		var ae *apperr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, apperr.KindNotFound, ae.Kind)
		assert.Equal(t, "no_trip_today", ae.Code)
		assert.Equal(t, []string{"no_trip"}, f.rec.resolved)
	})

	t.Run("one trip", func(t *testing.T) {
		f := newFixture(t, StrictDaily)
		trip, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "12:00 PM"})
		require.NoError(t, err)

		_, err = f.engine.CurrentLocation(ctx, f.bus.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "no location yet")

		stored, err := f.engine.UpsertLocation(ctx, LocationInput{
			BusID: f.bus.ID, TripID: trip.ID,
			Latitude: 6.9271, Longitude: 79.8612,
			LocationName: "Colombo Fort", Status: "moving",
		})
		require.NoError(t, err)

		current, err := f.engine.CurrentLocation(ctx, f.bus.ID)
		require.NoError(t, err)
		require.NotNil(t, current.Trip)
		assert.Equal(t, trip.ID, current.Trip.ID)
		assert.Equal(t, *stored, current.Location)
		assert.Equal(t, 6.9271, current.Location.Latitude)
		assert.Equal(t, 79.8612, current.Location.Longitude)
		assert.Equal(t, "Colombo Fort", current.Location.LocationName)
		assert.Equal(t, "moving", current.Location.Status)
		assert.Equal(t, []string{"no_location", "ok"}, f.rec.resolved)
	})

	t.Run("multiple trips today", func(t *testing.T) {
		f := newFixture(t, StrictDaily)
		// rows written under the pair policy can leave two trips on one day
		for _, slot := range []string{"8:00 AM-9:00 AM", "1:00 PM-2:00 PM"} {
			require.NoError(t, f.store.InsertTrip(ctx, &models.Trip{BusID: f.bus.ID, Date: "2025-01-01", StartTime: "8:00 AM", EndTime: "9:00 AM", Slot: slot}))
		}

		_, err := f.engine.CurrentLocation(ctx, f.bus.ID)
		require.Error(t, err)
		assert.Equal(t, apperr.KindAmbiguous, apperr.KindOf(err))
		assert.Equal(t, 409, apperr.HTTPStatus(apperr.KindOf(err)))
	})

	t.Run("bus only", func(t *testing.T) {
		f := newFixture(t, LegacyPair)
		_, err := f.engine.CurrentLocation(ctx, f.bus.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		_, err = f.engine.UpsertLocation(ctx, LocationInput{BusID: f.bus.ID, TripID: "ignored", Latitude: 1, Longitude: 2, LocationName: "Kandy", Status: "stopped"})
		require.NoError(t, err)

		current, err := f.engine.CurrentLocation(ctx, f.bus.ID)
		require.NoError(t, err)
		assert.Nil(t, current.Trip)
		assert.Empty(t, current.Location.TripID)
		assert.Equal(t, "Kandy", current.Location.LocationName)
	})
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t, StrictDaily)
	f.rec.fail = true

	_, err := f.engine.CreateTrip(context.Background(), TripInput{BusID: f.bus.ID, StartTime: "8:00 AM", EndTime: "12:00 PM"})
	assert.NoError(t, err)
}

func TestPurgeTrips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		_, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: d, StartTime: "8:00 AM", EndTime: "9:00 AM"})
		require.NoError(t, err)
	}

	_, err := f.engine.PurgeTrips(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	n, err := f.engine.PurgeTrips(ctx, f.bus.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	trips, err := f.engine.ListTrips(ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Empty(t, trips)

	bus, err := f.store.FindBus(ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Empty(t, bus.Trips)
}

func TestTodayTrips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, StrictDaily)
	for _, d := range []string{"2024-12-31", "2025-01-01"} {
		_, err := f.engine.CreateTrip(ctx, TripInput{BusID: f.bus.ID, Date: d, StartTime: "8:00 AM", EndTime: "9:00 AM"})
		require.NoError(t, err)
	}

	trips, err := f.engine.TodayTrips(ctx, f.bus.ID)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "2025-01-01", trips[0].Date)

	_, err = f.engine.TodayTrips(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
