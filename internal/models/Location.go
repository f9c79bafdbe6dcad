package models

import "time"

const (
	StatusMoving  = "moving"
	StatusStopped = "stopped"
)

// Location is the single last-known position slot of a bus, optionally
// scoped to one of its trips. It is overwritten in place, never appended.
type Location struct {
	ID           string    `json:"id" bson:"_id"`
	BusID        string    `json:"busId" bson:"busId"`
	TripID       string    `json:"tripId,omitempty" bson:"tripId"`
	Latitude     float64   `json:"latitude" bson:"latitude"`
	Longitude    float64   `json:"longitude" bson:"longitude"`
	LocationName string    `json:"locationName" bson:"locationName"`
	Status       string    `json:"status" bson:"status"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}
