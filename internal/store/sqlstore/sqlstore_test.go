package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.Kind
		code string
	}{
		{"record not found", gorm.ErrRecordNotFound, apperr.KindNotFound, "trip_not_found"},
		{"unique violation", &pq.Error{Code: "23505"}, apperr.KindConflict, "trip_conflict"},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), apperr.KindConflict, "trip_conflict"},
		{"connection failure", &pq.Error{Code: "08006"}, apperr.KindTransient, "unavailable"},
		{"query canceled", &pq.Error{Code: "57014"}, apperr.KindTransient, "unavailable"},
		{"syntax error", &pq.Error{Code: "42601"}, apperr.KindInternal, "internal"},
		{"bad conn", driver.ErrBadConn, apperr.KindTransient, "unavailable"},
		{"deadline", context.DeadlineExceeded, apperr.KindTransient, "unavailable"},
		{"other", errors.New("boom"), apperr.KindInternal, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translate(tt.err, "trip_not_found", "trip_conflict", "op")
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.kind, ae.Kind)
			assert.Equal(t, tt.code, ae.Code)
		})
	}
	assert.NoError(t, translate(nil, "", "", "op"))
}

func TestRouteRowGeometry(t *testing.T) {
	line := `{"type":"LineString","coordinates":[[79.8612,6.9271],[80.6337,7.2906]]}`
	in := &models.Route{ID: "r1", RouteName: "1", StartPoint: "Colombo", EndPoint: "Kandy", Geometry: line}

	row, err := toRouteRow(in)
	require.NoError(t, err)
	assert.NotEmpty(t, row.Geometry)

	out, err := row.model()
	require.NoError(t, err)
	assert.JSONEq(t, line, out.Geometry)
	assert.Equal(t, []string{}, out.Stops)

	_, err = toRouteRow(&models.Route{Geometry: "{"})
	assert.Error(t, err)
}

func TestBusRowKeepsEmptyTrips(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	row := toBusRow(&models.Bus{ID: "b1", BusRegNo: "NB-1", CreatedAt: now})
	assert.NotNil(t, row.Trips)

	b := busRow{ID: "b1"}.model()
	assert.Equal(t, []string{}, b.Trips)
}

func TestLikeEscaper(t *testing.T) {
	assert.Equal(t, `100\% \_route\\`, likeEscaper.Replace(`100% _route\`))
	assert.Equal(t, "Colombo", likeEscaper.Replace("Colombo"))
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"host=db port=5432 user=bus password=secret dbname=bus_tracker sslmode=disable TimeZone=UTC",
		DSN("db", "5432", "bus", "secret", "bus_tracker", "disable", "UTC"))
}
