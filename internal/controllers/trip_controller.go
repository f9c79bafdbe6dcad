package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bus_tracker/internal/tracking"
)

type tripInput struct {
	BusID     string `json:"busId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime" binding:"omitempty,clock12"`
	EndTime   string `json:"endTime" binding:"omitempty,clock12"`
}

func (ctl *Controller) CreateTrip(c *gin.Context) {
	var input tripInput
	if !bindJSON(c, "CreateTrip", &input) {
		return
	}
	trip, err := ctl.tracking.CreateTrip(c.Request.Context(), tracking.TripInput{
		BusID:     input.BusID,
		Date:      input.Date,
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
	})
	if err != nil {
		respondError(c, "CreateTrip", err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

func (ctl *Controller) ListBusTrips(c *gin.Context) {
	trips, err := ctl.tracking.ListTrips(c.Request.Context(), c.Param("busId"))
	if err != nil {
		respondError(c, "ListBusTrips", err)
		return
	}
	c.JSON(http.StatusOK, trips)
}

func (ctl *Controller) TodayBusTrips(c *gin.Context) {
	trips, err := ctl.tracking.TodayTrips(c.Request.Context(), c.Param("busId"))
	if err != nil {
		respondError(c, "TodayBusTrips", err)
		return
	}
	c.JSON(http.StatusOK, trips)
}

// PurgeTrips deletes every trip, or only those of ?busId=.
func (ctl *Controller) PurgeTrips(c *gin.Context) {
	n, err := ctl.tracking.PurgeTrips(c.Request.Context(), c.Query("busId"))
	if err != nil {
		respondError(c, "PurgeTrips", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
