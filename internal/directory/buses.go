package directory

import (
	"context"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/sirupsen/logrus"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

// BusInput carries bus fields for creation and partial updates. On update
// empty fields keep their stored value.
type BusInput struct {
	BusName    string `json:"busName"`
	BusRegNo   string `json:"busRegNo"`
	RouteID    string `json:"route"`
	OperatorID string `json:"user"`
}

// Operator is the public part of the user owning a bus.
type Operator struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// BusView is a bus joined with its route and operator. Route or Operator is
// nil when the referenced record no longer exists.
type BusView struct {
	ID         string        `json:"id"`
	BusName    string        `json:"busName"`
	BusRegNo   string        `json:"busRegNo"`
	RouteID    string        `json:"routeId"`
	Route      *models.Route `json:"route"`
	OperatorID string        `json:"userId"`
	Operator   *Operator     `json:"user"`
	Trips      []string      `json:"trips"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type Buses struct {
	store store.Store
	now   func() time.Time
}

func NewBuses(s store.Store) *Buses {
	return &Buses{store: s, now: time.Now}
}

func (b *Buses) Create(ctx context.Context, in BusInput) (*BusView, error) {
	in.trim()
	if in.BusName == "" || in.BusRegNo == "" || in.RouteID == "" {
		return nil, apperr.Validation("missing_fields", "busName, busRegNo and route are required")
	}
	if _, err := b.store.FindRoute(ctx, in.RouteID); err != nil {
		return nil, err
	}
	if in.OperatorID != "" {
		if _, err := b.store.FindUserByID(ctx, in.OperatorID); err != nil {
			return nil, err
		}
	}

	now := b.now()
	bus := &models.Bus{
		BusName:    in.BusName,
		BusRegNo:   in.BusRegNo,
		RouteID:    in.RouteID,
		OperatorID: in.OperatorID,
		Trips:      []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := b.store.CreateBus(ctx, bus); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"bus_id": bus.ID, "bus_reg_no": bus.BusRegNo}).Info("Bus created")
	return b.view(ctx, *bus, newJoinCache()), nil
}

func (in *BusInput) trim() {
	in.BusName = strings.TrimSpace(in.BusName)
	in.BusRegNo = strings.TrimSpace(in.BusRegNo)
	in.RouteID = strings.TrimSpace(in.RouteID)
	in.OperatorID = strings.TrimSpace(in.OperatorID)
}

func (b *Buses) List(ctx context.Context, f store.BusFilter) ([]BusView, error) {
	buses, err := b.store.ListBuses(ctx, f)
	if err != nil {
		return nil, err
	}
	return b.views(ctx, buses), nil
}

func (b *Buses) Get(ctx context.Context, id string) (*BusView, error) {
	bus, err := b.store.FindBus(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.view(ctx, *bus, newJoinCache()), nil
}

func (b *Buses) GetByRegNo(ctx context.Context, regNo string) (*BusView, error) {
	bus, err := b.store.FindBusByRegNo(ctx, regNo)
	if err != nil {
		return nil, err
	}
	return b.view(ctx, *bus, newJoinCache()), nil
}

func (b *Buses) Update(ctx context.Context, id string, upd BusInput) (*BusView, error) {
	bus, err := b.store.FindBus(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.update(ctx, bus, upd)
}

func (b *Buses) UpdateByRegNo(ctx context.Context, regNo string, upd BusInput) (*BusView, error) {
	bus, err := b.store.FindBusByRegNo(ctx, regNo)
	if err != nil {
		return nil, err
	}
	return b.update(ctx, bus, upd)
}

func (b *Buses) update(ctx context.Context, bus *models.Bus, upd BusInput) (*BusView, error) {
	upd.trim()
	if upd.RouteID != "" && upd.RouteID != bus.RouteID {
		if _, err := b.store.FindRoute(ctx, upd.RouteID); err != nil {
			return nil, err
		}
	}
	if upd.OperatorID != "" && upd.OperatorID != bus.OperatorID {
		if _, err := b.store.FindUserByID(ctx, upd.OperatorID); err != nil {
			return nil, err
		}
	}
	if err := copier.CopyWithOption(bus, &upd, copier.Option{IgnoreEmpty: true}); err != nil {
		return nil, apperr.Internal(err, "apply bus update")
	}
	bus.UpdatedAt = b.now()
	if err := b.store.UpdateBus(ctx, bus); err != nil {
		return nil, err
	}
	logrus.WithField("bus_id", bus.ID).Info("Bus updated")
	return b.view(ctx, *bus, newJoinCache()), nil
}

func (b *Buses) Delete(ctx context.Context, id string) error {
	bus, err := b.store.FindBus(ctx, id)
	if err != nil {
		return err
	}
	return b.delete(ctx, bus)
}

func (b *Buses) DeleteByRegNo(ctx context.Context, regNo string) error {
	bus, err := b.store.FindBusByRegNo(ctx, regNo)
	if err != nil {
		return err
	}
	return b.delete(ctx, bus)
}

// delete removes the bus together with its trips and location records.
func (b *Buses) delete(ctx context.Context, bus *models.Bus) error {
	trips, err := b.store.DeleteTrips(ctx, store.TripFilter{BusID: bus.ID})
	if err != nil {
		return err
	}
	locations, err := b.store.DeleteLocations(ctx, bus.ID)
	if err != nil {
		return err
	}
	if err := b.store.DeleteBus(ctx, bus.ID); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"bus_id":    bus.ID,
		"trips":     trips,
		"locations": locations,
	}).Info("Bus deleted")
	return nil
}

// SearchByPoints finds the buses serving routes whose start and end points
// contain the given values ignoring case.
func (b *Buses) SearchByPoints(ctx context.Context, start, end string) ([]BusView, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return nil, apperr.Validation("missing_fields", "startPoint and endPoint are required")
	}
	routes, err := b.store.FindRoutesByPoints(ctx, start, end, store.MatchContains)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, apperr.NotFound("route_not_found", "no routes found for this start and end point")
	}
	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		ids = append(ids, r.ID)
	}
	buses, err := b.store.ListBuses(ctx, store.BusFilter{RouteIDs: ids})
	if err != nil {
		return nil, err
	}
	if len(buses) == 0 {
		return nil, apperr.NotFound("bus_not_found", "no buses found for this route")
	}
	return b.views(ctx, buses), nil
}

type joinCache struct {
	routes    map[string]*models.Route
	operators map[string]*Operator
}

func newJoinCache() *joinCache {
	return &joinCache{routes: map[string]*models.Route{}, operators: map[string]*Operator{}}
}

func (b *Buses) views(ctx context.Context, buses []models.Bus) []BusView {
	cache := newJoinCache()
	out := make([]BusView, 0, len(buses))
	for _, bus := range buses {
		out = append(out, *b.view(ctx, bus, cache))
	}
	return out
}

func (b *Buses) view(ctx context.Context, bus models.Bus, cache *joinCache) *BusView {
	v := &BusView{
		ID:         bus.ID,
		BusName:    bus.BusName,
		BusRegNo:   bus.BusRegNo,
		RouteID:    bus.RouteID,
		OperatorID: bus.OperatorID,
		Trips:      nonNil(bus.Trips),
		CreatedAt:  bus.CreatedAt,
		UpdatedAt:  bus.UpdatedAt,
	}
	if bus.RouteID != "" {
		route, ok := cache.routes[bus.RouteID]
		if !ok {
			var err error
			if route, err = b.store.FindRoute(ctx, bus.RouteID); err != nil && !apperr.Is(err, apperr.KindNotFound) {
				logrus.WithError(err).WithField("bus_id", bus.ID).Warn("Bus view: route lookup failed")
			}
			cache.routes[bus.RouteID] = route
		}
		v.Route = route
	}
	if bus.OperatorID != "" {
		op, ok := cache.operators[bus.OperatorID]
		if !ok {
			u, err := b.store.FindUserByID(ctx, bus.OperatorID)
			switch {
			case err == nil:
				op = &Operator{ID: u.ID, UserName: u.UserName, Email: u.Email, Role: u.Role}
			case !apperr.Is(err, apperr.KindNotFound):
				logrus.WithError(err).WithField("bus_id", bus.ID).Warn("Bus view: operator lookup failed")
			}
			cache.operators[bus.OperatorID] = op
		}
		v.Operator = op
	}
	return v
}
