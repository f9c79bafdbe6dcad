// Package directory implements the keyed CRUD around routes, buses and users
// together with their uniqueness guards and read-side joins.
package directory

import (
	"context"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/sirupsen/logrus"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/geometry"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

// RouteInput carries route fields for creation and partial updates. On update
// empty fields keep their stored value.
type RouteInput struct {
	RouteName  string   `json:"routeName"`
	StartPoint string   `json:"startPoint"`
	EndPoint   string   `json:"endPoint"`
	Stops      []string `json:"stops"`
	Duration   string   `json:"duration"`
	Distance   string   `json:"distance"`
	Geometry   string   `json:"geometry"`
}

func (in *RouteInput) trim() {
	in.RouteName = strings.TrimSpace(in.RouteName)
	in.StartPoint = strings.TrimSpace(in.StartPoint)
	in.EndPoint = strings.TrimSpace(in.EndPoint)
}

type Routes struct {
	store store.Routes
	now   func() time.Time
}

func NewRoutes(s store.Routes) *Routes {
	return &Routes{store: s, now: time.Now}
}

func (r *Routes) Create(ctx context.Context, in RouteInput) (*models.Route, error) {
	in.trim()
	if in.RouteName == "" || in.StartPoint == "" || in.EndPoint == "" {
		return nil, apperr.Validation("missing_fields", "routeName, startPoint and endPoint are required")
	}
	geo, err := geometry.Normalize(in.Geometry)
	if err != nil {
		return nil, apperr.Validation("invalid_geometry", "invalid geometry: %v", err)
	}
	if err := r.checkPairFree(ctx, in.StartPoint, in.EndPoint, ""); err != nil {
		return nil, err
	}

	now := r.now()
	route := &models.Route{
		RouteName:  in.RouteName,
		StartPoint: in.StartPoint,
		EndPoint:   in.EndPoint,
		Stops:      nonNil(in.Stops),
		Duration:   in.Duration,
		Distance:   in.Distance,
		Geometry:   geo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.store.CreateRoute(ctx, route); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"route_id": route.ID, "route": route.RouteName}).Info("Route created")
	return route, nil
}

// checkPairFree fails with Conflict when a route other than exceptID already
// connects start and end.
func (r *Routes) checkPairFree(ctx context.Context, start, end, exceptID string) error {
	existing, err := r.store.FindRoutesByPoints(ctx, start, end, store.MatchExact)
	if err != nil {
		return err
	}
	for _, route := range existing {
		if route.ID != exceptID {
			return apperr.Conflict("route_exists", "a route from %s to %s already exists", start, end)
		}
	}
	return nil
}

func (r *Routes) List(ctx context.Context) ([]models.Route, error) {
	return r.store.ListRoutes(ctx)
}

func (r *Routes) Get(ctx context.Context, id string) (*models.Route, error) {
	return r.store.FindRoute(ctx, id)
}

// FindByPoints returns the routes whose start and end points equal the given
// values ignoring case.
func (r *Routes) FindByPoints(ctx context.Context, start, end string) ([]models.Route, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return nil, apperr.Validation("missing_fields", "startPoint and endPoint are required")
	}
	routes, err := r.store.FindRoutesByPoints(ctx, start, end, store.MatchExact)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, apperr.NotFound("route_not_found", "no route found from %s to %s", start, end)
	}
	return routes, nil
}

func (r *Routes) UpdateByPoints(ctx context.Context, start, end string, upd RouteInput) (*models.Route, error) {
	routes, err := r.FindByPoints(ctx, start, end)
	if err != nil {
		return nil, err
	}
	route := routes[0]

	upd.trim()
	geo, err := geometry.Normalize(upd.Geometry)
	if err != nil {
		return nil, apperr.Validation("invalid_geometry", "invalid geometry: %v", err)
	}
	upd.Geometry = geo
	if err := copier.CopyWithOption(&route, &upd, copier.Option{IgnoreEmpty: true, DeepCopy: true}); err != nil {
		return nil, apperr.Internal(err, "apply route update")
	}

	if !strings.EqualFold(route.StartPoint, start) || !strings.EqualFold(route.EndPoint, end) {
		if err := r.checkPairFree(ctx, route.StartPoint, route.EndPoint, route.ID); err != nil {
			return nil, err
		}
	}
	route.UpdatedAt = r.now()
	if err := r.store.UpdateRoute(ctx, &route); err != nil {
		return nil, err
	}
	logrus.WithField("route_id", route.ID).Info("Route updated")
	return &route, nil
}

func (r *Routes) DeleteByPoints(ctx context.Context, start, end string) error {
	routes, err := r.FindByPoints(ctx, start, end)
	if err != nil {
		return err
	}
	if err := r.store.DeleteRoute(ctx, routes[0].ID); err != nil {
		return err
	}
	logrus.WithField("route_id", routes[0].ID).Info("Route deleted")
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
