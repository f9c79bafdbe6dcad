// Package metrics exposes HTTP and tracking counters on a private Prometheus
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.CounterVec   // method, route, status
	HTTPDuration *prometheus.HistogramVec // method, route

	TripsCreated      prometheus.Counter
	TripsRejected     *prometheus.CounterVec // reason
	LocationsUpserted prometheus.Counter
	LocationLookups   *prometheus.CounterVec // outcome

	EventsPublished  prometheus.Counter
	EventPublishErrs prometheus.Counter
	NATSConnected    prometheus.Gauge
}

func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_tracker_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bus_tracker_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method", "route"}),
		TripsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_tracker_trips_created_total",
			Help: "Trips created.",
		}),
		TripsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_tracker_trips_rejected_total",
			Help: "Trip creations rejected, by error kind.",
		}, []string{"reason"}),
		LocationsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_tracker_locations_upserted_total",
			Help: "Location records written.",
		}),
		LocationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_tracker_location_lookups_total",
			Help: "Current location lookups by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_tracker_events_published_total",
			Help: "Events published to NATS.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_tracker_event_publish_errors_total",
			Help: "Failed NATS publishes.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bus_tracker_nats_connected",
			Help: "1 when the NATS connection is up.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests, c.HTTPDuration,
		c.TripsCreated, c.TripsRejected, c.LocationsUpserted, c.LocationLookups,
		c.EventsPublished, c.EventPublishErrs, c.NATSConnected,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Middleware records every request under its route template so path
// parameters do not explode label cardinality.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// tracking engine hooks

func (c *Collector) TripCreated()               { c.TripsCreated.Inc() }
func (c *Collector) TripRejected(reason string) { c.TripsRejected.WithLabelValues(reason).Inc() }
func (c *Collector) LocationUpserted()          { c.LocationsUpserted.Inc() }
func (c *Collector) LocationResolved(outcome string) {
	c.LocationLookups.WithLabelValues(outcome).Inc()
}

// event publisher hooks

func (c *Collector) EventPublished()    { c.EventsPublished.Inc() }
func (c *Collector) EventPublishError() { c.EventPublishErrs.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
