// Package mongostore is the MongoDB implementation of store.Store. Every
// uniqueness rule is backed by a unique index created in Migrate, so racing
// writers are arbitrated by the server.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

const (
	usersCollection     = "users"
	routesCollection    = "busroutes"
	busesCollection     = "buses"
	tripsCollection     = "trips"
	locationsCollection = "locations"
)

type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects to uri and pings the primary. timeout bounds every later
// store call that has no earlier deadline.
func Open(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperr.Transient(err, "ping mongodb")
	}
	return &Store{client: client, db: client.Database(database), timeout: timeout}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			unique(bson.D{{Key: "userName", Value: 1}}),
			unique(bson.D{{Key: "email", Value: 1}}),
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		routesCollection: {
			unique(bson.D{{Key: "routeName", Value: 1}}),
			{Keys: bson.D{{Key: "startPoint", Value: 1}, {Key: "endPoint", Value: 1}}},
		},
		busesCollection: {
			unique(bson.D{{Key: "busRegNo", Value: 1}}),
			{Keys: bson.D{{Key: "route", Value: 1}}},
		},
		tripsCollection: {
			unique(bson.D{{Key: "bus", Value: 1}, {Key: "slot", Value: 1}}),
			{Keys: bson.D{{Key: "bus", Value: 1}, {Key: "date", Value: 1}}},
		},
		locationsCollection: {
			unique(bson.D{{Key: "busId", Value: 1}, {Key: "tripId", Value: 1}}),
			{Keys: bson.D{{Key: "busId", Value: 1}, {Key: "updatedAt", Value: -1}}},
		},
	}
	for name, idx := range indexes {
		ctx, cancel := s.withTimeout(ctx)
		_, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx, options.CreateIndexes())
		cancel()
		if err != nil {
			return translate(err, "", "", "create indexes on %s", name)
		}
		logrus.WithField("collection", name).Debug("Indexes ensured")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return apperr.Transient(err, "ping mongodb")
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// translate maps driver errors onto apperr kinds. notFound and conflict are
// the codes used for missing documents and unique index violations.
func translate(err error, notFound, conflict, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperr.NotFound(notFound, "%s", notFoundMessage(notFound))
	case mongo.IsDuplicateKeyError(err):
		return apperr.Conflict(conflict, "%s", conflictMessage(conflict))
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.Transient(err, format, args...)
	}
	return apperr.Internal(err, format, args...)
}

func notFoundMessage(code string) string {
	switch code {
	case "user_not_found":
		return "user not found"
	case "route_not_found":
		return "route not found"
	case "bus_not_found":
		return "bus not found"
	case "trip_not_found":
		return "trip not found"
	case "location_not_found":
		return "no location found for this bus"
	}
	return "not found"
}

func conflictMessage(code string) string {
	switch code {
	case "user_exists":
		return "userName or email already exists"
	case "route_name_exists":
		return "route name already exists"
	case "bus_exists":
		return "bus registration number already exists"
	case "trip_conflict":
		return "bus already has a trip in this slot"
	}
	return "already exists"
}

// foldEqual matches value case-insensitively and literally.
func foldEqual(value string) bson.M {
	return bson.M{"$regex": "^" + regexp.QuoteMeta(value) + "$", "$options": "i"}
}

// foldContains matches a case-insensitive literal substring.
func foldContains(value string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(value), "$options": "i"}
}

func pointFilter(start, end string, match store.Match) bson.M {
	if match == store.MatchContains {
		return bson.M{"startPoint": foldContains(start), "endPoint": foldContains(end)}
	}
	return bson.M{"startPoint": foldEqual(start), "endPoint": foldEqual(end)}
}

func busFilter(f store.BusFilter) bson.M {
	filter := bson.M{}
	if len(f.RouteIDs) > 0 {
		filter["route"] = bson.M{"$in": f.RouteIDs}
	}
	if f.OperatorID != "" {
		filter["user"] = f.OperatorID
	}
	return filter
}

func tripFilter(f store.TripFilter) bson.M {
	filter := bson.M{}
	if f.BusID != "" {
		filter["bus"] = f.BusID
	}
	if f.Date != "" {
		filter["date"] = f.Date
	}
	return filter
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if u.ID == "" {
		u.ID = models.NewID()
	}
	_, err := s.coll(usersCollection).InsertOne(ctx, u)
	return translate(err, "", "user_exists", "insert user")
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var u models.User
	if err := s.coll(usersCollection).FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, translate(err, "user_not_found", "", "find user")
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}
	out := []models.User{}
	if err := s.findAll(ctx, usersCollection, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) findAll(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions, out any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cursor, err := s.coll(collection).Find(ctx, filter, opts)
	if err != nil {
		return translate(err, "", "", "find %s", collection)
	}
	if err := cursor.All(ctx, out); err != nil {
		return translate(err, "", "", "decode %s", collection)
	}
	return nil
}

// Routes

func (s *Store) CreateRoute(ctx context.Context, r *models.Route) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if r.ID == "" {
		r.ID = models.NewID()
	}
	_, err := s.coll(routesCollection).InsertOne(ctx, r)
	return translate(err, "", "route_name_exists", "insert route")
}

func (s *Store) ListRoutes(ctx context.Context) ([]models.Route, error) {
	out := []models.Route{}
	if err := s.findAll(ctx, routesCollection, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindRoute(ctx context.Context, id string) (*models.Route, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var r models.Route
	if err := s.coll(routesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, translate(err, "route_not_found", "", "find route")
	}
	return &r, nil
}

func (s *Store) FindRoutesByPoints(ctx context.Context, start, end string, match store.Match) ([]models.Route, error) {
	out := []models.Route{}
	if err := s.findAll(ctx, routesCollection, pointFilter(start, end, match), options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateRoute(ctx context.Context, r *models.Route) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll(routesCollection).ReplaceOne(ctx, bson.M{"_id": r.ID}, r)
	if err != nil {
		return translate(err, "", "route_name_exists", "update route")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("route_not_found", "route not found")
	}
	return nil
}

func (s *Store) DeleteRoute(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll(routesCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err, "", "", "delete route")
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("route_not_found", "route not found")
	}
	return nil
}

// Buses

func (s *Store) CreateBus(ctx context.Context, b *models.Bus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if b.ID == "" {
		b.ID = models.NewID()
	}
	if b.Trips == nil {
		b.Trips = []string{}
	}
	_, err := s.coll(busesCollection).InsertOne(ctx, b)
	return translate(err, "", "bus_exists", "insert bus")
}

func (s *Store) ListBuses(ctx context.Context, f store.BusFilter) ([]models.Bus, error) {
	out := []models.Bus{}
	if err := s.findAll(ctx, busesCollection, busFilter(f), options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) findBus(ctx context.Context, filter bson.M) (*models.Bus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var b models.Bus
	if err := s.coll(busesCollection).FindOne(ctx, filter).Decode(&b); err != nil {
		return nil, translate(err, "bus_not_found", "", "find bus")
	}
	return &b, nil
}

func (s *Store) FindBus(ctx context.Context, id string) (*models.Bus, error) {
	return s.findBus(ctx, bson.M{"_id": id})
}

func (s *Store) FindBusByRegNo(ctx context.Context, regNo string) (*models.Bus, error) {
	return s.findBus(ctx, bson.M{"busRegNo": regNo})
}

func (s *Store) UpdateBus(ctx context.Context, b *models.Bus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// trips is owned by AppendBusTrip and ClearBusTrips
	res, err := s.coll(busesCollection).UpdateOne(ctx, bson.M{"_id": b.ID}, bson.M{"$set": bson.M{
		"busName":   b.BusName,
		"busRegNo":  b.BusRegNo,
		"route":     b.RouteID,
		"user":      b.OperatorID,
		"updatedAt": b.UpdatedAt,
	}})
	if err != nil {
		return translate(err, "", "bus_exists", "update bus")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	return nil
}

func (s *Store) DeleteBus(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll(busesCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err, "", "", "delete bus")
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	return nil
}

func (s *Store) AppendBusTrip(ctx context.Context, busID, tripID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll(busesCollection).UpdateOne(ctx, bson.M{"_id": busID}, bson.M{"$push": bson.M{"trips": tripID}})
	if err != nil {
		return translate(err, "", "", "append trip to bus")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("bus_not_found", "bus not found")
	}
	return nil
}

func (s *Store) ClearBusTrips(ctx context.Context, busID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	if busID != "" {
		filter["_id"] = busID
	}
	_, err := s.coll(busesCollection).UpdateMany(ctx, filter, bson.M{"$set": bson.M{"trips": []string{}}})
	return translate(err, "", "", "clear bus trips")
}

// Trips

func (s *Store) InsertTrip(ctx context.Context, t *models.Trip) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = models.NewID()
	}
	_, err := s.coll(tripsCollection).InsertOne(ctx, t)
	return translate(err, "", "trip_conflict", "insert trip")
}

func (s *Store) FindTrip(ctx context.Context, id string) (*models.Trip, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var t models.Trip
	if err := s.coll(tripsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, translate(err, "trip_not_found", "", "find trip")
	}
	return &t, nil
}

func (s *Store) FindTrips(ctx context.Context, f store.TripFilter) ([]models.Trip, error) {
	out := []models.Trip{}
	sort := bson.D{{Key: "date", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	if err := s.findAll(ctx, tripsCollection, tripFilter(f), options.Find().SetSort(sort), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteTrips(ctx context.Context, f store.TripFilter) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll(tripsCollection).DeleteMany(ctx, tripFilter(f))
	if err != nil {
		return 0, translate(err, "", "", "delete trips")
	}
	return res.DeletedCount, nil
}

func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll(tripsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err, "", "", "delete trip")
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("trip_not_found", "trip not found")
	}
	return nil
}

// Locations

func (s *Store) UpsertLocation(ctx context.Context, l *models.Location) (*models.Location, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"busId": l.BusID, "tripId": l.TripID}
	update := bson.M{
		"$set": bson.M{
			"latitude":     l.Latitude,
			"longitude":    l.Longitude,
			"locationName": l.LocationName,
			"status":       l.Status,
			"updatedAt":    l.UpdatedAt,
		},
		"$setOnInsert": bson.M{"_id": models.NewID()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored models.Location
	err := s.coll(locationsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts inserted concurrently; the loser retries as an update
		err = s.coll(locationsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	}
	if err != nil {
		return nil, translate(err, "location_not_found", "", "upsert location")
	}
	return &stored, nil
}

func (s *Store) LatestLocation(ctx context.Context, busID string) (*models.Location, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}})
	var l models.Location
	if err := s.coll(locationsCollection).FindOne(ctx, bson.M{"busId": busID}, opts).Decode(&l); err != nil {
		return nil, translate(err, "location_not_found", "", "find latest location")
	}
	return &l, nil
}

func (s *Store) DeleteLocations(ctx context.Context, busID string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll(locationsCollection).DeleteMany(ctx, bson.M{"busId": busID})
	if err != nil {
		return 0, translate(err, "", "", "delete locations")
	}
	return res.DeletedCount, nil
}
