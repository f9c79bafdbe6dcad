package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bus_tracker/internal/controllers"
	"bus_tracker/internal/directory"
	"bus_tracker/internal/metrics"
	"bus_tracker/internal/middleware"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store/memstore"
	"bus_tracker/internal/tracking"
)

func init() { gin.SetMode(gin.TestMode) }

type server struct {
	t      *testing.T
	router *gin.Engine
	store  *memstore.Store
	creds  *middleware.Credentials
}

func newServer(t *testing.T, policy tracking.Policy) *server {
	t.Helper()
	s := memstore.New()
	creds, err := middleware.NewCredentials("route-test-secret-0123", time.Hour)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	ctl := controllers.New(controllers.Deps{
		Users:    directory.NewUsers(s),
		Routes:   directory.NewRoutes(s),
		Buses:    directory.NewBuses(s),
		Tracking: tracking.New(s, tracking.Options{Policy: policy, Now: func() time.Time { return now }}),
		Creds:    creds,
		Store:    s,
	})
	r := SetupRouter(ctl, creds, Options{Metrics: metrics.New()})
	return &server{t: t, router: r, store: s, creds: creds}
}

// seedUser stores a user directly and returns a token for it.
func (s *server) seedUser(name, role, password string) (*models.User, string) {
	s.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(s.t, err)
	u := &models.User{UserName: name, Email: name + "@example.com", Password: string(hash), Role: role}
	require.NoError(s.t, s.store.CreateUser(context.Background(), u))
	tok, err := s.creds.GenerateToken(u.ID, role)
	require.NoError(s.t, err)
	return u, tok
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, code, decode[errorBody](t, w).Code)
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t, tracking.StrictDaily)

	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"userName": "nimal", "email": "Nimal@Example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decode[struct {
		User models.User `json:"user"`
	}](t, w)
	assert.Equal(t, models.RoleCommuter, reg.User.Role)
	assert.NotContains(t, w.Body.String(), "secret1")

	w = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"userName": "nimal2", "email": "nimal@example.com", "password": "secret1"})
	assertError(t, w, http.StatusConflict, "user_exists")

	w = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"userName": "x", "email": "x@example.com", "password": "secret1", "role": "driver"})
	assertError(t, w, http.StatusBadRequest, "invalid_role")

	w = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"userName": "boss", "email": "boss@example.com", "password": "secret1", "role": "admin"})
	assertError(t, w, http.StatusForbidden, "admin_registration_forbidden")

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "nimal@example.com", "password": "wrong"})
	assertError(t, w, http.StatusUnauthorized, "invalid_credentials")

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "nimal@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}](t, w)
	require.NotEmpty(t, login.Token)

	w = s.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nimal", decode[models.User](t, w).UserName)

	assertError(t, s.do(http.MethodGet, "/api/auth/me", "", nil), http.StatusUnauthorized, "missing_token")
	assertError(t, s.do(http.MethodGet, "/api/auth/users", login.Token, nil), http.StatusForbidden, "insufficient_role")

	w = s.do(http.MethodPost, "/api/auth/register", login.Token, gin.H{"userName": "boss", "email": "boss@example.com", "password": "secret1", "role": "admin"})
	assertError(t, w, http.StatusForbidden, "admin_registration_forbidden")

	_, admin := s.seedUser("ntc", models.RoleAdmin, "pw1234")
	w = s.do(http.MethodPost, "/api/auth/register", admin, gin.H{"userName": "boss", "email": "boss@example.com", "password": "secret1", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assertError(t, s.do(http.MethodPost, "/api/auth/register", "garbage", gin.H{"userName": "y"}), http.StatusUnauthorized, "invalid_token")
}

func TestRouteRegistry(t *testing.T) {
	s := newServer(t, tracking.StrictDaily)
	_, admin := s.seedUser("ntc", models.RoleAdmin, "pw1234")
	_, commuter := s.seedUser("rider", models.RoleCommuter, "pw1234")

	route := gin.H{"routeName": "1", "startPoint": "Colombo", "endPoint": "Kandy", "stops": []string{"Kadawatha"}}
	assertError(t, s.do(http.MethodPost, "/api/ntc/routes", commuter, route), http.StatusForbidden, "insufficient_role")

	w := s.do(http.MethodPost, "/api/ntc/routes", admin, route)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Route](t, w)

	assertError(t, s.do(http.MethodPost, "/api/ntc/routes", admin,
		gin.H{"routeName": "1A", "startPoint": "colombo", "endPoint": "KANDY"}), http.StatusConflict, "route_exists")

	w = s.do(http.MethodGet, "/api/ntc/routes-by-points?startPoint=COLOMBO&endPoint=kandy", commuter, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Route](t, w), 1)

	w = s.do(http.MethodGet, "/api/ntc/routes/"+created.ID, commuter, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPut, "/api/ntc/routes/Colombo/Kandy", admin, gin.H{"duration": "3h"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3h", decode[models.Route](t, w).Duration)

	w = s.do(http.MethodDelete, "/api/ntc/routes/Colombo/Kandy", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assertError(t, s.do(http.MethodGet, "/api/ntc/routes/"+created.ID, commuter, nil), http.StatusNotFound, "route_not_found")
}

func TestCommuterCannotWrite(t *testing.T) {
	s := newServer(t, tracking.StrictDaily)
	_, commuter := s.seedUser("rider", models.RoleCommuter, "pw1234")
	ctx := context.Background()

	w := s.do(http.MethodPost, "/api/ntc/routes", commuter, gin.H{"routeName": "R1", "startPoint": "A", "endPoint": "B"})
	assertError(t, w, http.StatusForbidden, "insufficient_role")
	routes, err := s.store.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Empty(t, routes)

	w = s.do(http.MethodPost, "/api/operator/buses", commuter, gin.H{"busName": "X", "busRegNo": "NB-9", "route": "r1"})
	assertError(t, w, http.StatusForbidden, "insufficient_role")

	w = s.do(http.MethodDelete, "/api/trip/all", commuter, nil)
	assertError(t, w, http.StatusForbidden, "insufficient_role")
	assert.NotContains(t, w.Body.String(), "deleted")
}

func TestTripAndLocationFlow(t *testing.T) {
	s := newServer(t, tracking.StrictDaily)
	_, admin := s.seedUser("ntc", models.RoleAdmin, "pw1234")
	op, operator := s.seedUser("operator", models.RoleOperator, "pw1234")

	w := s.do(http.MethodPost, "/api/ntc/routes", admin, gin.H{"routeName": "1", "startPoint": "Colombo Fort", "endPoint": "Kandy"})
	require.Equal(t, http.StatusCreated, w.Code)
	route := decode[models.Route](t, w)

	w = s.do(http.MethodPost, "/api/operator/buses", operator, gin.H{"busName": "Express", "busRegNo": "NB-1234", "route": route.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bus := decode[directory.BusView](t, w)
	assert.Equal(t, op.ID, bus.OperatorID)
	require.NotNil(t, bus.Route)

	assertError(t, s.do(http.MethodPost, "/api/operator/buses", operator,
		gin.H{"busName": "Other", "busRegNo": "NB-1234", "route": route.ID}), http.StatusConflict, "bus_exists")

	assertError(t, s.do(http.MethodPost, "/api/trip", operator,
		gin.H{"busId": bus.ID, "startTime": "25:00 AM", "endTime": "6:00 PM"}), http.StatusBadRequest, "invalid_time")

	w = s.do(http.MethodPost, "/api/trip", operator, gin.H{"busId": bus.ID, "startTime": "8:00 AM", "endTime": "6:00 PM"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trip := decode[models.Trip](t, w)
	assert.Equal(t, "2025-01-01", trip.Date)

	assertError(t, s.do(http.MethodPost, "/api/trip", operator,
		gin.H{"busId": bus.ID, "startTime": "7:00 PM", "endTime": "9:00 PM"}), http.StatusConflict, "trip_conflict")

	w = s.do(http.MethodGet, "/api/trip/bus/"+bus.ID+"/today", operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Trip](t, w), 1)

	assertError(t, s.do(http.MethodGet, "/api/commuter/location/"+bus.ID, "", nil), http.StatusNotFound, "location_not_found")

	loc := gin.H{"busId": bus.ID, "tripId": trip.ID, "latitude": 6.9271, "longitude": 79.8612, "locationName": "Colombo Fort", "status": "moving"}
	assertError(t, s.do(http.MethodPost, "/api/commuter/savebuses", "", loc), http.StatusUnauthorized, "missing_token")
	assertError(t, s.do(http.MethodPost, "/api/commuter/savebuses", operator,
		gin.H{"busId": bus.ID, "tripId": trip.ID, "latitude": 91, "longitude": 0, "locationName": "x"}), http.StatusBadRequest, "invalid_coordinates")
	assertError(t, s.do(http.MethodPost, "/api/commuter/savebuses", operator,
		gin.H{"busId": bus.ID, "tripId": trip.ID, "latitude": 1, "longitude": 1, "locationName": "x", "status": "parked"}), http.StatusBadRequest, "invalid_status")

	w = s.do(http.MethodPost, "/api/commuter/savebuses", operator, loc)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/commuter/location/"+bus.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cur := decode[tracking.Current](t, w)
	require.NotNil(t, cur.Trip)
	assert.Equal(t, trip.ID, cur.Trip.ID)
	assert.Equal(t, "Colombo Fort", cur.Location.LocationName)

	w = s.do(http.MethodGet, "/api/commuter/searchBusesByRoute/fort/kan", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]directory.BusView](t, w), 1)
	assertError(t, s.do(http.MethodGet, "/api/commuter/searchBusesByRoute/Galle/Matara", "", nil), http.StatusNotFound, "route_not_found")

	assertError(t, s.do(http.MethodDelete, "/api/trip/all", operator, nil), http.StatusForbidden, "insufficient_role")
	w = s.do(http.MethodDelete, "/api/trip/all?busId="+bus.ID, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, w.Body.String())

	w = s.do(http.MethodDelete, "/api/operator/bus/by-regno/NB-1234", operator, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assertError(t, s.do(http.MethodGet, "/api/operator/buses/"+bus.ID, operator, nil), http.StatusNotFound, "bus_not_found")
}

func TestLegacyPairLocation(t *testing.T) {
	s := newServer(t, tracking.LegacyPair)
	_, admin := s.seedUser("ntc", models.RoleAdmin, "pw1234")

	w := s.do(http.MethodPost, "/api/ntc/routes", admin, gin.H{"routeName": "2", "startPoint": "Galle", "endPoint": "Matara"})
	require.Equal(t, http.StatusCreated, w.Code)
	route := decode[models.Route](t, w)
	w = s.do(http.MethodPost, "/api/operator/buses", admin, gin.H{"busName": "Coast", "busRegNo": "SP-1", "route": route.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	bus := decode[directory.BusView](t, w)

	w = s.do(http.MethodPost, "/api/commuter/savebuses", admin,
		gin.H{"busId": bus.ID, "latitude": 6.03, "longitude": 80.21, "locationName": "Galle Fort"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/commuter/location/"+bus.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"trip"`)
	assert.Equal(t, models.StatusMoving, decode[tracking.Current](t, w).Location.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, tracking.StrictDaily)

	w := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","policy":"strict-daily"}`, w.Body.String())

	w = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	assertError(t, s.do(http.MethodGet, "/api/nope", "", nil), http.StatusNotFound, "not_found")
}
