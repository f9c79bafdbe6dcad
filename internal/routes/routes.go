package routes

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"bus_tracker/internal/controllers"
	"bus_tracker/internal/logger"
	"bus_tracker/internal/metrics"
	"bus_tracker/internal/middleware"
)

// Options toggles the cross-cutting middleware. Nil fields switch the
// matching feature off.
type Options struct {
	CORSOrigins []string
	LogWriter   io.Writer
	Metrics     *metrics.Collector
}

func SetupRouter(ctl *controllers.Controller, creds *middleware.Credentials, opts Options) *gin.Engine {
	controllers.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	if opts.LogWriter != nil {
		r.Use(logger.RequestLogger(opts.LogWriter, "/health", "/metrics"))
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	r.Use(middleware.EnableCORS(opts.CORSOrigins))

	r.GET("/health", ctl.Health)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "not_found"})
	})

	api := r.Group("/api")
	AuthRoutes(api, ctl, creds)
	AdminRoutes(api, ctl, creds)
	VehicleRoutes(api, ctl, creds)
	TripRoutes(api, ctl, creds)
	CommuterRoutes(api, ctl, creds)

	return r
}
