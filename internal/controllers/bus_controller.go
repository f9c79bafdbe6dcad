package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bus_tracker/internal/directory"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

// CreateBus registers a bus. Operators own the buses they create; admins may
// name another owner through "user".
func (ctl *Controller) CreateBus(c *gin.Context) {
	var input directory.BusInput
	if !bindJSON(c, "CreateBus", &input) {
		return
	}
	if input.OperatorID == "" || middleware.Role(c) != models.RoleAdmin {
		input.OperatorID = middleware.UserID(c)
	}

	bus, err := ctl.buses.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, "CreateBus", err)
		return
	}
	c.JSON(http.StatusCreated, bus)
}

// ListBuses returns every bus, optionally narrowed with ?route=a,b and ?user=.
func (ctl *Controller) ListBuses(c *gin.Context) {
	var f store.BusFilter
	if routes := c.Query("route"); routes != "" {
		f.RouteIDs = strings.Split(routes, ",")
	}
	f.OperatorID = c.Query("user")

	buses, err := ctl.buses.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, "ListBuses", err)
		return
	}
	c.JSON(http.StatusOK, buses)
}

func (ctl *Controller) GetBus(c *gin.Context) {
	bus, err := ctl.buses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetBus", err)
		return
	}
	c.JSON(http.StatusOK, bus)
}

func (ctl *Controller) GetBusByRegNo(c *gin.Context) {
	bus, err := ctl.buses.GetByRegNo(c.Request.Context(), c.Param("busRegNo"))
	if err != nil {
		respondError(c, "GetBusByRegNo", err)
		return
	}
	c.JSON(http.StatusOK, bus)
}

func (ctl *Controller) UpdateBus(c *gin.Context) {
	var input directory.BusInput
	if !bindJSON(c, "UpdateBus", &input) {
		return
	}
	bus, err := ctl.buses.Update(c.Request.Context(), c.Param("id"), ownerUpdate(c, input))
	if err != nil {
		respondError(c, "UpdateBus", err)
		return
	}
	c.JSON(http.StatusOK, bus)
}

func (ctl *Controller) UpdateBusByRegNo(c *gin.Context) {
	var input directory.BusInput
	if !bindJSON(c, "UpdateBusByRegNo", &input) {
		return
	}
	bus, err := ctl.buses.UpdateByRegNo(c.Request.Context(), c.Param("busRegNo"), ownerUpdate(c, input))
	if err != nil {
		respondError(c, "UpdateBusByRegNo", err)
		return
	}
	c.JSON(http.StatusOK, bus)
}

// ownerUpdate drops an ownership change unless an admin asked for it.
func ownerUpdate(c *gin.Context, in directory.BusInput) directory.BusInput {
	if middleware.Role(c) != models.RoleAdmin {
		in.OperatorID = ""
	}
	return in
}

func (ctl *Controller) DeleteBus(c *gin.Context) {
	if err := ctl.buses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "DeleteBus", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bus deleted successfully"})
}

func (ctl *Controller) DeleteBusByRegNo(c *gin.Context) {
	if err := ctl.buses.DeleteByRegNo(c.Request.Context(), c.Param("busRegNo")); err != nil {
		respondError(c, "DeleteBusByRegNo", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bus deleted successfully"})
}

// SearchBusesByRoute is the public commuter search: substring match on the
// route's start and end points.
func (ctl *Controller) SearchBusesByRoute(c *gin.Context) {
	buses, err := ctl.buses.SearchByPoints(c.Request.Context(), c.Param("startPoint"), c.Param("endPoint"))
	if err != nil {
		respondError(c, "SearchBusesByRoute", err)
		return
	}
	c.JSON(http.StatusOK, buses)
}
