package routes

import (
	"github.com/gin-gonic/gin"

	"bus_tracker/internal/controllers"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
)

// CommuterRoutes are public reads plus the operators' location feed.
func CommuterRoutes(r *gin.RouterGroup, ctl *controllers.Controller, creds *middleware.Credentials) {
	commuter := r.Group("/commuter")
	{
		commuter.POST("/savebuses", creds.RequireAuthWithRole(models.RoleOperator, models.RoleAdmin), ctl.SaveLocation)
		commuter.GET("/searchBusesByRoute/:startPoint/:endPoint", ctl.SearchBusesByRoute)
		commuter.GET("/location/:busId", ctl.CurrentLocation)
	}
}
