package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bus_tracker/internal/tracking"
)

type locationInput struct {
	BusID  string `json:"busId"`
	TripID string `json:"tripId"`
	// pointers so a missing coordinate is told apart from 0
	Latitude     *float64 `json:"latitude" binding:"required,latitude"`
	Longitude    *float64 `json:"longitude" binding:"required,longitude"`
	LocationName string   `json:"locationName"`
	Status       string   `json:"status"`
}

// SaveLocation overwrites the bus's last known position.
func (ctl *Controller) SaveLocation(c *gin.Context) {
	var input locationInput
	if !bindJSON(c, "SaveLocation", &input) {
		return
	}
	loc, err := ctl.tracking.UpsertLocation(c.Request.Context(), tracking.LocationInput{
		BusID:        input.BusID,
		TripID:       input.TripID,
		Latitude:     *input.Latitude,
		Longitude:    *input.Longitude,
		LocationName: input.LocationName,
		Status:       input.Status,
	})
	if err != nil {
		respondError(c, "SaveLocation", err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

// CurrentLocation returns {trip, location} for trip scoped tracking and
// {location} otherwise.
func (ctl *Controller) CurrentLocation(c *gin.Context) {
	cur, err := ctl.tracking.CurrentLocation(c.Request.Context(), c.Param("busId"))
	if err != nil {
		respondError(c, "CurrentLocation", err)
		return
	}
	c.JSON(http.StatusOK, cur)
}
