package config

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	logrus "github.com/sirupsen/logrus"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/logger"
	"bus_tracker/internal/store"
	"bus_tracker/internal/store/memstore"
	"bus_tracker/internal/store/mongostore"
	"bus_tracker/internal/store/sqlstore"
)

// opener dials one store driver. Tests swap it out.
type opener func(ctx context.Context, cfg StoreConfig) (store.Store, error)

var openers = map[string]opener{
	"memory": func(context.Context, StoreConfig) (store.Store, error) {
		return memstore.New(), nil
	},
	"mongo": func(ctx context.Context, cfg StoreConfig) (store.Store, error) {
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.Timeout)
	},
	"postgres": func(ctx context.Context, cfg StoreConfig) (store.Store, error) {
		pg := cfg.Postgres
		dsn := sqlstore.DSN(pg.Host, pg.Port, pg.User, pg.Password, pg.Name, pg.SSLMode, pg.TimeZone)
		return sqlstore.Open(ctx, dsn, cfg.Timeout, logger.GormLogger())
	},
}

// InitStore opens the configured store, retrying transient failures with
// exponential backoff until the connect window closes.
func InitStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	open, ok := openers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	var s store.Store
	op := func() error {
		var err error
		s, err = open(ctx, cfg)
		if err != nil && apperr.KindOf(err) != apperr.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"driver": cfg.Driver,
			"retry":  wait.String(),
		}).WithError(err).Warn("Store not reachable yet")
	}

	if err := backoff.RetryNotify(op, connectBackOff(ctx, cfg.ConnectTimeout), notify); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	logrus.WithField("driver", cfg.Driver).Info("Store connected")
	return s, nil
}

func connectBackOff(ctx context.Context, window time.Duration) backoff.BackOff {
	if window <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = window
	return backoff.WithContext(b, ctx)
}
