package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	logrus "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"bus_tracker/internal/config"
	"bus_tracker/internal/controllers"
	"bus_tracker/internal/directory"
	"bus_tracker/internal/events"
	"bus_tracker/internal/logger"
	"bus_tracker/internal/metrics"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
	"bus_tracker/internal/routes"
	"bus_tracker/internal/store"
	"bus_tracker/internal/tracking"

	_ "time/tzdata"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:   "bus-tracker",
		Usage:  "Bus tracking REST backend",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create store indexes and tables, then exit",
				Action: migrate,
			},
			{
				Name:  "purge-trips",
				Usage: "Delete every trip, or only one bus's trips",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bus", Usage: "only purge trips of this bus id"},
				},
				Action: purgeTrips,
			},
			{
				Name:  "create-admin",
				Usage: "Create an admin account; the API only lets admins do this",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"ADMIN_PASSWORD"}},
				},
				Action: createAdmin,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("bus-tracker exited")
	}
}

// env is what every command needs: validated config, logging set up and
// an open store.
type env struct {
	cfg    *config.Config
	logOut io.Writer
	store  store.Store
}

func bootstrap(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logOut, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, err
	}
	s, err := config.InitStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logOut: logOut, store: s}, nil
}

func (rt *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.store.Close(ctx); err != nil {
		logrus.WithError(err).Warn("Store close failed")
	}
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	if err := rt.store.Migrate(ctx); err != nil {
		return err
	}

	collector := metrics.New()
	opts := tracking.Options{
		Policy:  cfg.Policy(),
		Zone:    cfg.Zone(),
		Metrics: collector,
	}
	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, collector)
		if err != nil {
			logrus.WithError(err).Warn("Events disabled: NATS unreachable")
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}
	engine := tracking.New(rt.store, opts)

	creds, err := middleware.NewCredentials(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	ctl := controllers.New(controllers.Deps{
		Users:    directory.NewUsers(rt.store),
		Routes:   directory.NewRoutes(rt.store),
		Buses:    directory.NewBuses(rt.store),
		Tracking: engine,
		Creds:    creds,
		Store:    rt.store,
	})
	router := routes.SetupRouter(ctl, creds, routes.Options{
		CORSOrigins: cfg.CORSOrigins,
		LogWriter:   rt.logOut,
		Metrics:     collector,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":   srv.Addr,
			"store":  cfg.Store.Driver,
			"policy": engine.Policy(),
		}).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrate(c *cli.Context) error {
	rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.store.Migrate(c.Context); err != nil {
		return err
	}
	logrus.WithField("store", rt.cfg.Store.Driver).Info("Migration complete")
	return nil
}

func purgeTrips(c *cli.Context) error {
	rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	engine := tracking.New(rt.store, tracking.Options{Policy: rt.cfg.Policy(), Zone: rt.cfg.Zone()})
	n, err := engine.PurgeTrips(c.Context, c.String("bus"))
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"deleted": n, "bus_id": c.String("bus")}).Info("Trips purged")
	return nil
}

func createAdmin(c *cli.Context) error {
	rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	u, err := directory.NewUsers(rt.store).Register(c.Context, directory.RegisterInput{
		UserName:   c.String("name"),
		Email:      c.String("email"),
		Password:   c.String("password"),
		Role:       models.RoleAdmin,
		AllowAdmin: true,
	})
	if err != nil {
		return err
	}
	logrus.WithField("user_id", u.ID).Info("Admin created")
	return nil
}
