package routes

import (
	"github.com/gin-gonic/gin"

	"bus_tracker/internal/controllers"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
)

func AuthRoutes(r *gin.RouterGroup, ctl *controllers.Controller, creds *middleware.Credentials) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", creds.OptionalAuth(), ctl.Register)
		auth.POST("/login", ctl.Login)
		auth.GET("/me", creds.RequireAuth(), ctl.Me)
		auth.GET("/users", creds.RequireAuthWithRole(models.RoleAdmin), ctl.ListUsers)
	}
}
