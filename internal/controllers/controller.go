package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	logrus "github.com/sirupsen/logrus"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/directory"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/tracking"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Users    *directory.Users
	Routes   *directory.Routes
	Buses    *directory.Buses
	Tracking *tracking.Engine
	Creds    *middleware.Credentials
	Store    Pinger
}

// Controller holds the HTTP handlers. Handlers translate requests into
// service calls and service errors into JSON responses; they hold no state
// of their own.
type Controller struct {
	users    *directory.Users
	routes   *directory.Routes
	buses    *directory.Buses
	tracking *tracking.Engine
	creds    *middleware.Credentials
	store    Pinger
}

func New(d Deps) *Controller {
	return &Controller{
		users:    d.Users,
		routes:   d.Routes,
		buses:    d.Buses,
		tracking: d.Tracking,
		creds:    d.Creds,
		store:    d.Store,
	}
}

// respondError writes the {"error","code"} body for err. Client errors are
// logged at Warn, everything else at Error.
func respondError(c *gin.Context, op string, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	code, msg := apperr.Describe(err)

	entry := logrus.WithContext(c.Request.Context()).WithError(err).WithFields(logrus.Fields{
		"op":     op,
		"code":   code,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

// bindJSON decodes the body into dst and answers 400 itself when that fails.
func bindJSON(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, op, bindingError(err))
		return false
	}
	return true
}

// bindingError turns gin binding failures into validation errors whose codes
// match the ones the services return for the same problem.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			return apperr.Validation("missing_fields", "%s is required", field)
		case tagClock12:
			return apperr.Validation("invalid_time", "%s must look like 8:00 AM", field)
		case "latitude", "longitude":
			return apperr.Validation("invalid_coordinates", "%s is out of range", field)
		case "email":
			return apperr.Validation("invalid_email", "email is not a valid address")
		case "oneof":
			return apperr.Validation("invalid_"+field, "%s must be one of: %s", field, fe.Param())
		}
		return apperr.Validation("invalid_request", "%s is invalid", field)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Validation("invalid_request", "%s has the wrong type", typeErr.Field)
	}
	return apperr.Validation("invalid_request", "malformed request body")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
