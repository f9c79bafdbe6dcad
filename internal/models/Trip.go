package models

import "time"

// DateLayout is the wire and storage format of a trip's service date.
const DateLayout = "2006-01-02"

// Trip is a single-day service window for a bus. StartTime and EndTime are
// 12-hour clock values such as "8:00 AM".
type Trip struct {
	ID        string `json:"id" bson:"_id"`
	BusID     string `json:"bus" bson:"bus"`
	Date      string `json:"date" bson:"date"`
	StartTime string `json:"startTime" bson:"startTime"`
	EndTime   string `json:"endTime" bson:"endTime"`

	// Slot is the per-bus uniqueness key; its shape depends on the tracking
	// policy that created the trip.
	Slot string `json:"-" bson:"slot"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
