package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bus_tracker/internal/apperr"
)

// Health pings the store; 503 when it is unreachable.
func (ctl *Controller) Health(c *gin.Context) {
	if err := ctl.store.Ping(c.Request.Context()); err != nil {
		respondError(c, "Health", apperr.Transient(err, "store unreachable"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"policy": ctl.tracking.Policy(),
	})
}
