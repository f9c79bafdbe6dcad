package models

import "time"

// Route is a named path between a start and an end point with intermediate
// stops. StartPoint and EndPoint are matched case-insensitively.
type Route struct {
	ID         string   `json:"id" bson:"_id"`
	RouteName  string   `json:"routeName" bson:"routeName"`
	StartPoint string   `json:"startPoint" bson:"startPoint"`
	EndPoint   string   `json:"endPoint" bson:"endPoint"`
	Stops      []string `json:"stops" bson:"stops"`
	Duration   string   `json:"duration,omitempty" bson:"duration,omitempty"`
	Distance   string   `json:"distance,omitempty" bson:"distance,omitempty"`

	// Geometry is an optional GeoJSON LineString.
	Geometry string `json:"geometry,omitempty" bson:"geometry,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
