package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bus_tracker/internal/directory"
)

// CreateRoute registers a route. geometry, when given, must be a GeoJSON
// LineString.
func (ctl *Controller) CreateRoute(c *gin.Context) {
	var input directory.RouteInput
	if !bindJSON(c, "CreateRoute", &input) {
		return
	}
	route, err := ctl.routes.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, "CreateRoute", err)
		return
	}
	c.JSON(http.StatusCreated, route)
}

func (ctl *Controller) ListRoutes(c *gin.Context) {
	routes, err := ctl.routes.List(c.Request.Context())
	if err != nil {
		respondError(c, "ListRoutes", err)
		return
	}
	c.JSON(http.StatusOK, routes)
}

func (ctl *Controller) GetRoute(c *gin.Context) {
	route, err := ctl.routes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetRoute", err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// GetRoutesByPoints answers ?startPoint=&endPoint= with exact,
// case-insensitive matches.
func (ctl *Controller) GetRoutesByPoints(c *gin.Context) {
	routes, err := ctl.routes.FindByPoints(c.Request.Context(), c.Query("startPoint"), c.Query("endPoint"))
	if err != nil {
		respondError(c, "GetRoutesByPoints", err)
		return
	}
	c.JSON(http.StatusOK, routes)
}

func (ctl *Controller) UpdateRoute(c *gin.Context) {
	var input directory.RouteInput
	if !bindJSON(c, "UpdateRoute", &input) {
		return
	}
	route, err := ctl.routes.UpdateByPoints(c.Request.Context(), c.Param("startPoint"), c.Param("endPoint"), input)
	if err != nil {
		respondError(c, "UpdateRoute", err)
		return
	}
	c.JSON(http.StatusOK, route)
}

func (ctl *Controller) DeleteRoute(c *gin.Context) {
	if err := ctl.routes.DeleteByPoints(c.Request.Context(), c.Param("startPoint"), c.Param("endPoint")); err != nil {
		respondError(c, "DeleteRoute", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bus route deleted successfully"})
}
