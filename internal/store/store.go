// Package store declares the document operations the rest of the service
// consumes. Implementations live in the memstore, mongostore and sqlstore
// subpackages and translate driver failures into apperr kinds:
// missing documents are NotFound, unique index violations are Conflict and
// I/O timeouts are Transient.
package store

import (
	"context"

	"bus_tracker/internal/models"
)

// Match selects how route start/end points are compared.
type Match int

const (
	// MatchExact compares case-insensitively for equality.
	MatchExact Match = iota
	// MatchContains compares case-insensitively for a literal substring.
	MatchContains
)

// BusFilter narrows ListBuses. Zero values match everything.
type BusFilter struct {
	RouteIDs   []string
	OperatorID string
}

// TripFilter narrows FindTrips and DeleteTrips. Zero values match everything.
type TripFilter struct {
	BusID string
	Date  string
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, role string) ([]models.User, error)
}

type Routes interface {
	CreateRoute(ctx context.Context, r *models.Route) error
	ListRoutes(ctx context.Context) ([]models.Route, error)
	FindRoute(ctx context.Context, id string) (*models.Route, error)
	FindRoutesByPoints(ctx context.Context, start, end string, match Match) ([]models.Route, error)
	UpdateRoute(ctx context.Context, r *models.Route) error
	DeleteRoute(ctx context.Context, id string) error
}

type Buses interface {
	CreateBus(ctx context.Context, b *models.Bus) error
	ListBuses(ctx context.Context, f BusFilter) ([]models.Bus, error)
	FindBus(ctx context.Context, id string) (*models.Bus, error)
	FindBusByRegNo(ctx context.Context, regNo string) (*models.Bus, error)
	UpdateBus(ctx context.Context, b *models.Bus) error
	DeleteBus(ctx context.Context, id string) error
	AppendBusTrip(ctx context.Context, busID, tripID string) error
	// ClearBusTrips empties the trip list of one bus, or of every bus when
	// busID is empty.
	ClearBusTrips(ctx context.Context, busID string) error
}

type Trips interface {
	// InsertTrip fails with Conflict when the bus already has a trip with
	// the same Slot.
	InsertTrip(ctx context.Context, t *models.Trip) error
	FindTrip(ctx context.Context, id string) (*models.Trip, error)
	// FindTrips returns trips ordered by date, then insertion.
	FindTrips(ctx context.Context, f TripFilter) ([]models.Trip, error)
	DeleteTrips(ctx context.Context, f TripFilter) (int64, error)
	DeleteTrip(ctx context.Context, id string) error
}

type Locations interface {
	// UpsertLocation atomically creates or replaces the record keyed by
	// (BusID, TripID) and returns the stored record.
	UpsertLocation(ctx context.Context, l *models.Location) (*models.Location, error)
	// LatestLocation returns the most recently updated record of the bus.
	LatestLocation(ctx context.Context, busID string) (*models.Location, error)
	DeleteLocations(ctx context.Context, busID string) (int64, error)
}

// Store is the full document store adapter.
type Store interface {
	Users
	Routes
	Buses
	Trips
	Locations

	// Migrate creates indexes or tables; it is idempotent.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
