package sqlstore

import (
	"time"

	"github.com/lib/pq"

	"bus_tracker/internal/geometry"
	"bus_tracker/internal/models"
)

type userRow struct {
	ID        string    `gorm:"primaryKey;size:24"`
	UserName  string    `gorm:"uniqueIndex;not null"`
	Email     string    `gorm:"uniqueIndex;not null"`
	Password  string    `gorm:"not null"`
	Role      string    `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

func toUserRow(u *models.User) userRow {
	return userRow{
		ID:        u.ID,
		UserName:  u.UserName,
		Email:     u.Email,
		Password:  u.Password,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (r userRow) model() models.User {
	return models.User{
		ID:        r.ID,
		UserName:  r.UserName,
		Email:     r.Email,
		Password:  r.Password,
		Role:      r.Role,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// routeRow keeps the optional path as WKB so PostGIS can read the column.
type routeRow struct {
	ID         string         `gorm:"primaryKey;size:24"`
	RouteName  string         `gorm:"uniqueIndex;not null"`
	StartPoint string         `gorm:"index:idx_route_points;not null"`
	EndPoint   string         `gorm:"index:idx_route_points;not null"`
	Stops      pq.StringArray `gorm:"type:text[]"`
	Duration   string
	Distance   string
	Geometry   []byte    `gorm:"type:bytea"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (routeRow) TableName() string { return "bus_routes" }

func toRouteRow(r *models.Route) (routeRow, error) {
	wkbGeom, err := geometry.ToWKB(r.Geometry)
	if err != nil {
		return routeRow{}, err
	}
	return routeRow{
		ID:         r.ID,
		RouteName:  r.RouteName,
		StartPoint: r.StartPoint,
		EndPoint:   r.EndPoint,
		Stops:      pq.StringArray(r.Stops),
		Duration:   r.Duration,
		Distance:   r.Distance,
		Geometry:   wkbGeom,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func (r routeRow) model() (models.Route, error) {
	geo, err := geometry.FromWKB(r.Geometry)
	if err != nil {
		return models.Route{}, err
	}
	stops := []string(r.Stops)
	if stops == nil {
		stops = []string{}
	}
	return models.Route{
		ID:         r.ID,
		RouteName:  r.RouteName,
		StartPoint: r.StartPoint,
		EndPoint:   r.EndPoint,
		Stops:      stops,
		Duration:   r.Duration,
		Distance:   r.Distance,
		Geometry:   geo,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

type busRow struct {
	ID         string         `gorm:"primaryKey;size:24"`
	BusName    string         `gorm:"not null"`
	BusRegNo   string         `gorm:"uniqueIndex;not null"`
	RouteID    string         `gorm:"index;size:24"`
	OperatorID string         `gorm:"index;size:24"`
	Trips      pq.StringArray `gorm:"type:text[]"`
	CreatedAt  time.Time      `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime:false"`
}

func (busRow) TableName() string { return "buses" }

func toBusRow(b *models.Bus) busRow {
	trips := pq.StringArray(b.Trips)
	if trips == nil {
		trips = pq.StringArray{}
	}
	return busRow{
		ID:         b.ID,
		BusName:    b.BusName,
		BusRegNo:   b.BusRegNo,
		RouteID:    b.RouteID,
		OperatorID: b.OperatorID,
		Trips:      trips,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func (r busRow) model() models.Bus {
	trips := []string(r.Trips)
	if trips == nil {
		trips = []string{}
	}
	return models.Bus{
		ID:         r.ID,
		BusName:    r.BusName,
		BusRegNo:   r.BusRegNo,
		RouteID:    r.RouteID,
		OperatorID: r.OperatorID,
		Trips:      trips,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type tripRow struct {
	ID        string    `gorm:"primaryKey;size:24"`
	BusID     string    `gorm:"uniqueIndex:idx_trip_bus_slot;index:idx_trip_bus_date;size:24;not null"`
	Slot      string    `gorm:"uniqueIndex:idx_trip_bus_slot;not null"`
	Date      string    `gorm:"index:idx_trip_bus_date;size:10;not null"`
	StartTime string    `gorm:"not null"`
	EndTime   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (tripRow) TableName() string { return "trips" }

func toTripRow(t *models.Trip) tripRow {
	return tripRow{
		ID:        t.ID,
		BusID:     t.BusID,
		Slot:      t.Slot,
		Date:      t.Date,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (r tripRow) model() models.Trip {
	return models.Trip{
		ID:        r.ID,
		BusID:     r.BusID,
		Slot:      r.Slot,
		Date:      r.Date,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type locationRow struct {
	ID           string    `gorm:"primaryKey;size:24"`
	BusID        string    `gorm:"uniqueIndex:idx_location_key;size:24;not null"`
	TripID       string    `gorm:"uniqueIndex:idx_location_key;size:24;not null;default:''"`
	Latitude     float64   `gorm:"not null"`
	Longitude    float64   `gorm:"not null"`
	LocationName string    `gorm:"not null"`
	Status       string    `gorm:"size:16;not null"`
	UpdatedAt    time.Time `gorm:"index;autoUpdateTime:false"`
}

func (locationRow) TableName() string { return "locations" }

func toLocationRow(l *models.Location) locationRow {
	return locationRow{
		ID:           l.ID,
		BusID:        l.BusID,
		TripID:       l.TripID,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		LocationName: l.LocationName,
		Status:       l.Status,
		UpdatedAt:    l.UpdatedAt,
	}
}

func (r locationRow) model() models.Location {
	return models.Location{
		ID:           r.ID,
		BusID:        r.BusID,
		TripID:       r.TripID,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		LocationName: r.LocationName,
		Status:       r.Status,
		UpdatedAt:    r.UpdatedAt,
	}
}
