package controllers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus_tracker/internal/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

func bindBody(t *testing.T, body string, dst any) error {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if bindJSON(c, "test", dst) {
		return nil
	}
	return errors.New(w.Body.String())
}

func TestBindingErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		body string
		dst  any
		code string
	}{
		{"bad clock", `{"busId":"b1","startTime":"8:00","endTime":"9:00 AM"}`, &tripInput{}, "invalid_time"},
		{"latitude", `{"busId":"b1","latitude":-91,"longitude":0}`, &locationInput{}, "invalid_coordinates"},
		{"longitude", `{"busId":"b1","latitude":0,"longitude":181}`, &locationInput{}, "invalid_coordinates"},
		{"missing latitude", `{"busId":"b1","longitude":79.8}`, &locationInput{}, "missing_fields"},
		{"missing longitude", `{"busId":"b1","latitude":6.9}`, &locationInput{}, "missing_fields"},
		{"email", `{"email":"not-an-email"}`, &registerInput{}, "invalid_email"},
		{"wrong type", `{"latitude":"north"}`, &locationInput{}, "invalid_request"},
		{"malformed", `{`, &tripInput{}, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bindBody(t, tt.body, tt.dst)
			require.Error(t, err)
			assert.Contains(t, err.Error(), `"code":"`+tt.code+`"`)
		})
	}

	assert.NoError(t, bindBody(t, `{"busId":"b1","startTime":"8:00 am","endTime":"6:00PM"}`, &tripInput{}))
	assert.NoError(t, bindBody(t, `{"busId":"b1","startTime":"","endTime":""}`, &tripInput{}), "emptiness is the engine's call")
	assert.NoError(t, bindBody(t, `{"busId":"b1","latitude":0,"longitude":0}`, &locationInput{}), "zero is a coordinate")
}

func TestRespondErrorHidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, "test", apperr.Internal(errors.New("pq: password authentication failed"), "find bus"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":"internal"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	respondError(c, "test", apperr.Ambiguous("multiple_trips_today", "bus has 2 trips today"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"bus has 2 trips today","code":"multiple_trips_today"}`, w.Body.String())
}
