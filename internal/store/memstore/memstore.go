// Package memstore is an in-process store.Store used for local runs
// (STORE_DRIVER=memory) and as the test double of the service packages.
// Every method takes the single lock, so each call is atomic the same way a
// single-document write is atomic in the real stores.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

type Store struct {
	mu sync.RWMutex

	users     map[string]models.User
	userOrder []string

	routes     map[string]models.Route
	routeOrder []string

	buses    map[string]models.Bus
	busOrder []string

	trips []models.Trip

	locations []models.Location
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:  map[string]models.User{},
		routes: map[string]models.Route{},
		buses:  map[string]models.Bus{},
	}
}

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close(context.Context) error   { return nil }

// Users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.UserName == u.UserName || existing.Email == u.Email {
			return apperr.Conflict("user_exists", "userName or email already exists")
		}
	}
	if u.ID == "" {
		u.ID = models.NewID()
	}
	s.users[u.ID] = *u
	s.userOrder = append(s.userOrder, u.ID)
	return nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user_not_found", "user not found")
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.userOrder {
		if u := s.users[id]; u.Email == email {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user_not_found", "user not found")
}

func (s *Store) ListUsers(_ context.Context, role string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.User{}
	for _, id := range s.userOrder {
		if u := s.users[id]; role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// Routes

func (s *Store) CreateRoute(_ context.Context, r *models.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.routeNameTaken(r.RouteName, "") {
		return apperr.Conflict("route_name_exists", "route name %q already exists", r.RouteName)
	}
	if r.ID == "" {
		r.ID = models.NewID()
	}
	s.routes[r.ID] = cloneRoute(*r)
	s.routeOrder = append(s.routeOrder, r.ID)
	return nil
}

func (s *Store) routeNameTaken(name, exceptID string) bool {
	for id, existing := range s.routes {
		if id != exceptID && existing.RouteName == name {
			return true
		}
	}
	return false
}

func (s *Store) ListRoutes(context.Context) ([]models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Route{}
	for _, id := range s.routeOrder {
		out = append(out, cloneRoute(s.routes[id]))
	}
	return out, nil
}

func (s *Store) FindRoute(_ context.Context, id string) (*models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routes[id]
	if !ok {
		return nil, apperr.NotFound("route_not_found", "route not found")
	}
	r = cloneRoute(r)
	return &r, nil
}

func (s *Store) FindRoutesByPoints(_ context.Context, start, end string, match store.Match) ([]models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Route{}
	for _, id := range s.routeOrder {
		r := s.routes[id]
		if pointMatches(r.StartPoint, start, match) && pointMatches(r.EndPoint, end, match) {
			out = append(out, cloneRoute(r))
		}
	}
	return out, nil
}

func pointMatches(value, query string, match store.Match) bool {
	if match == store.MatchContains {
		return strings.Contains(strings.ToLower(value), strings.ToLower(query))
	}
	return strings.EqualFold(value, query)
}

func (s *Store) UpdateRoute(_ context.Context, r *models.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[r.ID]; !ok {
		return apperr.NotFound("route_not_found", "route not found")
	}
	if s.routeNameTaken(r.RouteName, r.ID) {
		return apperr.Conflict("route_name_exists", "route name %q already exists", r.RouteName)
	}
	s.routes[r.ID] = cloneRoute(*r)
	return nil
}

func (s *Store) DeleteRoute(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[id]; !ok {
		return apperr.NotFound("route_not_found", "route not found")
	}
	delete(s.routes, id)
	s.routeOrder = slices.DeleteFunc(s.routeOrder, func(v string) bool { return v == id })
	return nil
}

// Buses

func (s *Store) CreateBus(_ context.Context, b *models.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.regNoTaken(b.BusRegNo, "") {
		return apperr.Conflict("bus_exists", "bus registration number %q already exists", b.BusRegNo)
	}
	if b.ID == "" {
		b.ID = models.NewID()
	}
	s.buses[b.ID] = cloneBus(*b)
	s.busOrder = append(s.busOrder, b.ID)
	return nil
}

func (s *Store) regNoTaken(regNo, exceptID string) bool {
	for id, existing := range s.buses {
		if id != exceptID && existing.BusRegNo == regNo {
			return true
		}
	}
	return false
}

func (s *Store) ListBuses(_ context.Context, f store.BusFilter) ([]models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Bus{}
	for _, id := range s.busOrder {
		b := s.buses[id]
		if f.OperatorID != "" && b.OperatorID != f.OperatorID {
			continue
		}
		if f.RouteIDs != nil && !slices.Contains(f.RouteIDs, b.RouteID) {
			continue
		}
		out = append(out, cloneBus(b))
	}
	return out, nil
}

func (s *Store) FindBus(_ context.Context, id string) (*models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buses[id]
	if !ok {
		return nil, apperr.NotFound("bus_not_found", "bus not found")
	}
	b = cloneBus(b)
	return &b, nil
}

func (s *Store) FindBusByRegNo(_ context.Context, regNo string) (*models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.busOrder {
		if b := s.buses[id]; b.BusRegNo == regNo {
			b = cloneBus(b)
			return &b, nil
		}
	}
	return nil, apperr.NotFound("bus_not_found", "bus not found with this registration number")
}

func (s *Store) UpdateBus(_ context.Context, b *models.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buses[b.ID]; !ok {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	if s.regNoTaken(b.BusRegNo, b.ID) {
		return apperr.Conflict("bus_exists", "bus registration number %q already exists", b.BusRegNo)
	}
	s.buses[b.ID] = cloneBus(*b)
	return nil
}

func (s *Store) DeleteBus(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buses[id]; !ok {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	delete(s.buses, id)
	s.busOrder = slices.DeleteFunc(s.busOrder, func(v string) bool { return v == id })
	return nil
}

func (s *Store) AppendBusTrip(_ context.Context, busID, tripID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buses[busID]
	if !ok {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	b.Trips = append(slices.Clone(b.Trips), tripID)
	s.buses[busID] = b
	return nil
}

func (s *Store) ClearBusTrips(_ context.Context, busID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, b := range s.buses {
		if busID == "" || id == busID {
			b.Trips = []string{}
			s.buses[id] = b
		}
	}
	return nil
}

// Trips

func (s *Store) InsertTrip(_ context.Context, t *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.trips {
		if existing.BusID == t.BusID && existing.Slot == t.Slot {
			return apperr.Conflict("trip_conflict", "bus already has a trip for %s", t.Slot)
		}
	}
	if t.ID == "" {
		t.ID = models.NewID()
	}
	s.trips = append(s.trips, *t)
	return nil
}

func (s *Store) FindTrip(_ context.Context, id string) (*models.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.trips {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, apperr.NotFound("trip_not_found", "trip not found")
}

func tripMatches(t models.Trip, f store.TripFilter) bool {
	return (f.BusID == "" || t.BusID == f.BusID) && (f.Date == "" || t.Date == f.Date)
}

func (s *Store) FindTrips(_ context.Context, f store.TripFilter) ([]models.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Trip{}
	for _, t := range s.trips {
		if tripMatches(t, f) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Trip) int { return strings.Compare(a.Date, b.Date) })
	return out, nil
}

func (s *Store) DeleteTrips(_ context.Context, f store.TripFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.trips)
	s.trips = slices.DeleteFunc(s.trips, func(t models.Trip) bool { return tripMatches(t, f) })
	return int64(before - len(s.trips)), nil
}

func (s *Store) DeleteTrip(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.trips)
	s.trips = slices.DeleteFunc(s.trips, func(t models.Trip) bool { return t.ID == id })
	if len(s.trips) == before {
		return apperr.NotFound("trip_not_found", "trip not found")
	}
	return nil
}

// Locations

func (s *Store) UpsertLocation(_ context.Context, l *models.Location) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.locations {
		if existing.BusID == l.BusID && existing.TripID == l.TripID {
			stored := *l
			stored.ID = existing.ID
			s.locations[i] = stored
			return &stored, nil
		}
	}
	stored := *l
	if stored.ID == "" {
		stored.ID = models.NewID()
	}
	s.locations = append(s.locations, stored)
	return &stored, nil
}

func (s *Store) LatestLocation(_ context.Context, busID string) (*models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Location
	for i := range s.locations {
		l := s.locations[i]
		if l.BusID != busID {
			continue
		}
		if latest == nil || !l.UpdatedAt.Before(latest.UpdatedAt) {
			latest = &l
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("location_not_found", "no location found for this bus")
	}
	return latest, nil
}

func (s *Store) DeleteLocations(_ context.Context, busID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.locations)
	s.locations = slices.DeleteFunc(s.locations, func(l models.Location) bool { return l.BusID == busID })
	return int64(before - len(s.locations)), nil
}

func cloneRoute(r models.Route) models.Route {
	r.Stops = slices.Clone(r.Stops)
	if r.Stops == nil {
		r.Stops = []string{}
	}
	return r
}

func cloneBus(b models.Bus) models.Bus {
	b.Trips = slices.Clone(b.Trips)
	if b.Trips == nil {
		b.Trips = []string{}
	}
	return b
}
