package models

import "time"

// Bus is a vehicle owned by an operator and assigned to a route. Trips holds
// the ids of the bus's trips in creation order.
type Bus struct {
	ID         string    `json:"id" bson:"_id"`
	BusName    string    `json:"busName" bson:"busName"`
	BusRegNo   string    `json:"busRegNo" bson:"busRegNo"`
	RouteID    string    `json:"route" bson:"route"`
	OperatorID string    `json:"user" bson:"user"`
	Trips      []string  `json:"trips" bson:"trips"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}
