// Package events publishes committed trip and location writes to NATS so
// downstream consumers can follow buses without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"bus_tracker/internal/models"
)

const (
	TypeTrip     = "trip"
	TypeLocation = "location"
)

// Envelope is the JSON body of every event.
type Envelope struct {
	Type      string           `json:"type"`
	BusID     string           `json:"busId"`
	Timestamp time.Time        `json:"timestamp"`
	Trip      *models.Trip     `json:"trip,omitempty"`
	Location  *models.Location `json:"location,omitempty"`
}

type Metrics interface {
	EventPublished()
	EventPublishError()
	NATSSetConnected(connected bool)
}

type conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc      *nats.Conn
	conn    conn
	prefix  string
	metrics Metrics
}

func NewNATSPublisher(url, prefix string, m Metrics) (*NATSPublisher, error) {
	setConnected := func(up bool) {
		if m != nil {
			m.NATSSetConnected(up)
		}
	}
	nc, err := nats.Connect(url,
		nats.Name("bus-tracker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			logrus.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			setConnected(true)
			logrus.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			logrus.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	setConnected(true)
	return &NATSPublisher{nc: nc, conn: nc, prefix: prefix, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			logrus.WithError(err).Warn("NATS drain failed")
		}
		p.nc.Close()
	}
}

func (p *NATSPublisher) PublishTrip(ctx context.Context, trip models.Trip) error {
	return p.publish(ctx, Envelope{
		Type:      TypeTrip,
		BusID:     trip.BusID,
		Timestamp: trip.CreatedAt,
		Trip:      &trip,
	})
}

func (p *NATSPublisher) PublishLocation(ctx context.Context, loc models.Location) error {
	return p.publish(ctx, Envelope{
		Type:      TypeLocation,
		BusID:     loc.BusID,
		Timestamp: loc.UpdatedAt,
		Location:  &loc,
	})
}

func (p *NATSPublisher) publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, env.BusID, env.Type)
	err = p.conn.Publish(subject, body)
	if p.metrics != nil {
		if err != nil {
			p.metrics.EventPublishError()
		} else {
			p.metrics.EventPublished()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subject returns "<prefix>.bus.<busID>.<kind>".
func Subject(prefix, busID, kind string) string {
	return strings.Join([]string{subjectToken(prefix), "bus", subjectToken(busID), subjectToken(kind)}, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// tokens cannot contain whitespace, '.', '>' or '*'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
