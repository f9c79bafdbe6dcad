package routes

import (
	"github.com/gin-gonic/gin"

	"bus_tracker/internal/controllers"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
)

func VehicleRoutes(r *gin.RouterGroup, ctl *controllers.Controller, creds *middleware.Credentials) {
	operator := r.Group("/operator")
	operator.Use(creds.RequireAuthWithRole(models.RoleOperator, models.RoleAdmin))
	{
		operator.POST("/buses", ctl.CreateBus)
		operator.GET("/buses", ctl.ListBuses)
		operator.GET("/buses/:id", ctl.GetBus)
		operator.PUT("/buses/:id", ctl.UpdateBus)
		operator.DELETE("/buses/:id", ctl.DeleteBus)

		operator.GET("/bus/by-regno/:busRegNo", ctl.GetBusByRegNo)
		operator.PUT("/bus/by-regno/:busRegNo", ctl.UpdateBusByRegNo)
		operator.DELETE("/bus/by-regno/:busRegNo", ctl.DeleteBusByRegNo)
	}
}

func TripRoutes(r *gin.RouterGroup, ctl *controllers.Controller, creds *middleware.Credentials) {
	trip := r.Group("/trip")
	{
		trip.POST("", creds.RequireAuthWithRole(models.RoleOperator, models.RoleAdmin), ctl.CreateTrip)
		trip.GET("/bus/:busId", creds.RequireAuth(), ctl.ListBusTrips)
		trip.GET("/bus/:busId/today", creds.RequireAuth(), ctl.TodayBusTrips)
		trip.DELETE("/all", creds.RequireAuthWithRole(models.RoleAdmin), ctl.PurgeTrips)
	}
}
