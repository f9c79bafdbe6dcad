// Package sqlstore is the PostgreSQL implementation of store.Store on top of
// gorm and lib/pq. Uniqueness rules are unique indexes created by Migrate.
package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects through the lib/pq driver. A nil log keeps gorm's default.
func Open(ctx context.Context, dsn string, timeout time.Duration, log gormlogger.Interface) (*Store, error) {
	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = log
	}
	db, err := gorm.Open(postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn}), cfg)
	if err != nil {
		return nil, translate(err, "", "", "connect postgres")
	}
	s := &Store{db: db, timeout: timeout}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// DSN builds a lib/pq connection string.
func DSN(host, port, user, password, name, sslmode, timezone string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		host, port, user, password, name, sslmode, timezone)
}

func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &routeRow{}, &busRow{}, &tripRow{}, &locationRow{})
	if err != nil {
		return translate(err, "", "", "auto migrate")
	}
	logrus.Info("Database migration completed")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Internal(err, "postgres handle")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Transient(err, "ping postgres")
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// conn returns a session bound to ctx plus its cancel func.
func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := s.withTimeout(ctx)
	return s.db.WithContext(ctx), cancel
}

// translate maps gorm and lib/pq errors onto apperr kinds. notFound and
// conflict are the codes used for missing rows and unique violations.
func translate(err error, notFound, conflict, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(notFound, "%s", strings.ReplaceAll(codeOr(notFound, "not_found"), "_", " "))
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return apperr.Conflict(conflict, "%s", strings.ReplaceAll(codeOr(conflict, "conflict"), "_", " "))
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			// connection exception, insufficient resources, operator intervention
			return apperr.Transient(err, format, args...)
		}
		return apperr.Internal(err, format, args...)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Transient(err, format, args...)
	}
	return apperr.Internal(err, format, args...)
}

func codeOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// pointQuery narrows a route query to the given start and end points.
func pointQuery(db *gorm.DB, start, end string, match store.Match) *gorm.DB {
	if match == store.MatchContains {
		return db.Where(`start_point ILIKE ? ESCAPE '\' AND end_point ILIKE ? ESCAPE '\'`,
			"%"+likeEscaper.Replace(start)+"%", "%"+likeEscaper.Replace(end)+"%")
	}
	return db.Where("LOWER(start_point) = LOWER(?) AND LOWER(end_point) = LOWER(?)", start, end)
}

func tripQuery(db *gorm.DB, f store.TripFilter) *gorm.DB {
	if f.BusID != "" {
		db = db.Where("bus_id = ?", f.BusID)
	}
	if f.Date != "" {
		db = db.Where("date = ?", f.Date)
	}
	return db
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	if u.ID == "" {
		u.ID = models.NewID()
	}
	row := toUserRow(u)
	return translate(db.Create(&row).Error, "", "user_exists", "insert user")
}

func (s *Store) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row userRow
	if err := db.Where(query, arg).First(&row).Error; err != nil {
		return nil, translate(err, "user_not_found", "", "find user")
	}
	u := row.model()
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	if role != "" {
		db = db.Where("role = ?", role)
	}
	var rows []userRow
	if err := db.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "", "", "list users")
	}
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// Routes

func (s *Store) CreateRoute(ctx context.Context, r *models.Route) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	if r.ID == "" {
		r.ID = models.NewID()
	}
	row, err := toRouteRow(r)
	if err != nil {
		return apperr.Validation("invalid_geometry", "invalid geometry: %v", err)
	}
	return translate(db.Create(&row).Error, "", "route_name_exists", "insert route")
}

func routeModels(rows []routeRow) ([]models.Route, error) {
	out := make([]models.Route, 0, len(rows))
	for _, row := range rows {
		r, err := row.model()
		if err != nil {
			return nil, apperr.Internal(err, "decode route %s geometry", row.ID)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ListRoutes(ctx context.Context) ([]models.Route, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var rows []routeRow
	if err := db.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "", "", "list routes")
	}
	return routeModels(rows)
}

func (s *Store) FindRoute(ctx context.Context, id string) (*models.Route, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row routeRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err, "route_not_found", "", "find route")
	}
	r, err := row.model()
	if err != nil {
		return nil, apperr.Internal(err, "decode route %s geometry", row.ID)
	}
	return &r, nil
}

func (s *Store) FindRoutesByPoints(ctx context.Context, start, end string, match store.Match) ([]models.Route, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var rows []routeRow
	if err := pointQuery(db, start, end, match).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "", "", "find routes by points")
	}
	return routeModels(rows)
}

func (s *Store) UpdateRoute(ctx context.Context, r *models.Route) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	row, err := toRouteRow(r)
	if err != nil {
		return apperr.Validation("invalid_geometry", "invalid geometry: %v", err)
	}
	res := db.Model(&routeRow{}).Where("id = ?", r.ID).Updates(map[string]any{
		"route_name":  row.RouteName,
		"start_point": row.StartPoint,
		"end_point":   row.EndPoint,
		"stops":       row.Stops,
		"duration":    row.Duration,
		"distance":    row.Distance,
		"geometry":    row.Geometry,
		"updated_at":  row.UpdatedAt,
	})
	if res.Error != nil {
		return translate(res.Error, "", "route_name_exists", "update route")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("route_not_found", "route not found")
	}
	return nil
}

func (s *Store) DeleteRoute(ctx context.Context, id string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Where("id = ?", id).Delete(&routeRow{})
	if res.Error != nil {
		return translate(res.Error, "", "", "delete route")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("route_not_found", "route not found")
	}
	return nil
}

// Buses

func (s *Store) CreateBus(ctx context.Context, b *models.Bus) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	if b.ID == "" {
		b.ID = models.NewID()
	}
	row := toBusRow(b)
	return translate(db.Create(&row).Error, "", "bus_exists", "insert bus")
}

func (s *Store) ListBuses(ctx context.Context, f store.BusFilter) ([]models.Bus, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	if len(f.RouteIDs) > 0 {
		db = db.Where("route_id IN ?", f.RouteIDs)
	}
	if f.OperatorID != "" {
		db = db.Where("operator_id = ?", f.OperatorID)
	}
	var rows []busRow
	if err := db.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "", "", "list buses")
	}
	out := make([]models.Bus, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) findBus(ctx context.Context, query string, arg any) (*models.Bus, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row busRow
	if err := db.Where(query, arg).First(&row).Error; err != nil {
		return nil, translate(err, "bus_not_found", "", "find bus")
	}
	b := row.model()
	return &b, nil
}

func (s *Store) FindBus(ctx context.Context, id string) (*models.Bus, error) {
	return s.findBus(ctx, "id = ?", id)
}

func (s *Store) FindBusByRegNo(ctx context.Context, regNo string) (*models.Bus, error) {
	return s.findBus(ctx, "bus_reg_no = ?", regNo)
}

func (s *Store) UpdateBus(ctx context.Context, b *models.Bus) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	// trips is owned by AppendBusTrip and ClearBusTrips
	res := db.Model(&busRow{}).Where("id = ?", b.ID).Updates(map[string]any{
		"bus_name":    b.BusName,
		"bus_reg_no":  b.BusRegNo,
		"route_id":    b.RouteID,
		"operator_id": b.OperatorID,
		"updated_at":  b.UpdatedAt,
	})
	if res.Error != nil {
		return translate(res.Error, "", "bus_exists", "update bus")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	return nil
}

func (s *Store) DeleteBus(ctx context.Context, id string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Where("id = ?", id).Delete(&busRow{})
	if res.Error != nil {
		return translate(res.Error, "", "", "delete bus")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	return nil
}

func (s *Store) AppendBusTrip(ctx context.Context, busID, tripID string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Model(&busRow{}).Where("id = ?", busID).
		Update("trips", gorm.Expr("array_append(trips, ?)", tripID))
	if res.Error != nil {
		return translate(res.Error, "", "", "append trip to bus")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	return nil
}

func (s *Store) ClearBusTrips(ctx context.Context, busID string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	q := db.Model(&busRow{})
	if busID != "" {
		q = q.Where("id = ?", busID)
	} else {
		q = q.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	return translate(q.Update("trips", pq.StringArray{}).Error, "", "", "clear bus trips")
}

// Trips

func (s *Store) InsertTrip(ctx context.Context, t *models.Trip) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = models.NewID()
	}
	row := toTripRow(t)
	return translate(db.Create(&row).Error, "", "trip_conflict", "insert trip")
}

func (s *Store) FindTrip(ctx context.Context, id string) (*models.Trip, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row tripRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err, "trip_not_found", "", "find trip")
	}
	t := row.model()
	return &t, nil
}

func (s *Store) FindTrips(ctx context.Context, f store.TripFilter) ([]models.Trip, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var rows []tripRow
	if err := tripQuery(db, f).Order("date, created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err, "", "", "find trips")
	}
	out := make([]models.Trip, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) DeleteTrips(ctx context.Context, f store.TripFilter) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	q := tripQuery(db, f)
	if f == (store.TripFilter{}) {
		q = q.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	res := q.Delete(&tripRow{})
	if res.Error != nil {
		return 0, translate(res.Error, "", "", "delete trips")
	}
	return res.RowsAffected, nil
}

func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Where("id = ?", id).Delete(&tripRow{})
	if res.Error != nil {
		return translate(res.Error, "", "", "delete trip")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("trip_not_found", "trip not found")
	}
	return nil
}

// Locations

func (s *Store) UpsertLocation(ctx context.Context, l *models.Location) (*models.Location, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	row := toLocationRow(l)
	if row.ID == "" {
		row.ID = models.NewID()
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bus_id"}, {Name: "trip_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "location_name", "status", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, translate(err, "", "", "upsert location")
	}

	var stored locationRow
	if err := db.Where("bus_id = ? AND trip_id = ?", l.BusID, l.TripID).First(&stored).Error; err != nil {
		return nil, translate(err, "location_not_found", "", "reload location")
	}
	out := stored.model()
	return &out, nil
}

func (s *Store) LatestLocation(ctx context.Context, busID string) (*models.Location, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var row locationRow
	err := db.Where("bus_id = ?", busID).Order("updated_at DESC, id DESC").First(&row).Error
	if err != nil {
		return nil, translate(err, "location_not_found", "", "find latest location")
	}
	l := row.model()
	return &l, nil
}

func (s *Store) DeleteLocations(ctx context.Context, busID string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Where("bus_id = ?", busID).Delete(&locationRow{})
	if res.Error != nil {
		return 0, translate(res.Error, "", "", "delete locations")
	}
	return res.RowsAffected, nil
}
