package routes

import (
	"github.com/gin-gonic/gin"

	"bus_tracker/internal/controllers"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
)

// AdminRoutes is the regulator's route registry: reads for any signed-in
// user, writes for admins.
func AdminRoutes(r *gin.RouterGroup, ctl *controllers.Controller, creds *middleware.Credentials) {
	ntc := r.Group("/ntc")
	ntc.Use(creds.RequireAuth())
	{
		ntc.GET("/routes", ctl.ListRoutes)
		ntc.GET("/routes/:id", ctl.GetRoute)
		ntc.GET("/routes-by-points", ctl.GetRoutesByPoints)
	}

	admin := r.Group("/ntc")
	admin.Use(creds.RequireAuthWithRole(models.RoleAdmin))
	{
		admin.POST("/routes", ctl.CreateRoute)
		admin.PUT("/routes/:startPoint/:endPoint", ctl.UpdateRoute)
		admin.DELETE("/routes/:startPoint/:endPoint", ctl.DeleteRoute)
	}
}
