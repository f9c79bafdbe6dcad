package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test"

func init() { gin.SetMode(gin.TestMode) }

func newCreds(t *testing.T) *Credentials {
	t.Helper()
	cr, err := NewCredentials(testSecret, time.Hour)
	require.NoError(t, err)
	return cr
}

func TestNewCredentialsRejectsWeakSecret(t *testing.T) {
	_, err := NewCredentials("", time.Hour)
	assert.Error(t, err)
	_, err = NewCredentials("supersecret", time.Hour)
	assert.Error(t, err)
	_, err = NewCredentials(testSecret, 0)
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	cr := newCreds(t)
	tok, err := cr.GenerateToken("u1", "operator")
	require.NoError(t, err)

	claims, err := cr.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "operator", claims.Role)
	assert.NotNil(t, claims.IssuedAt)
}

func TestValidateTokenFailures(t *testing.T) {
	cr := newCreds(t)

	other, err := NewCredentials("another-secret-0123456", time.Hour)
	require.NoError(t, err)
	foreign, err := other.GenerateToken("u1", "admin")
	require.NoError(t, err)

	expiredCreds := newCreds(t)
	expiredCreds.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredCreds.GenerateToken("u1", "admin")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]struct {
		token string
		code  string
	}{
		"garbage":      {"not-a-token", "invalid_token"},
		"wrong secret": {foreign, "invalid_token"},
		"expired":      {expired, "token_expired"},
		"alg none":     {unsigned, "invalid_token"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := cr.ValidateToken(tt.token)
			require.Error(t, err)
			var body struct{ Code string }
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			abort(c, err)
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func protectedRouter(cr *Credentials) *gin.Engine {
	r := gin.New()
	r.GET("/me", cr.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "role": Role(c)})
	})
	r.POST("/trip", cr.RequireAuthWithRole("operator", "admin"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	cr := newCreds(t)
	r := protectedRouter(cr)

	w := do(r, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"missing or invalid Authorization header","code":"missing_token"}`, w.Body.String())

	tok, err := cr.GenerateToken("u7", "commuter")
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/me", tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u7","role":"commuter"}`, w.Body.String())
}

func TestRequireAuthWithRole(t *testing.T) {
	cr := newCreds(t)
	r := protectedRouter(cr)

	commuter, _ := cr.GenerateToken("u1", "commuter")
	operator, _ := cr.GenerateToken("u2", "operator")
	admin, _ := cr.GenerateToken("u3", "admin")

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/trip", "").Code)

	w := do(r, http.MethodPost, "/trip", commuter)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_role")

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/trip", operator).Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/trip", admin).Code)
}

func TestRequireAuthWithRoleStopsBeforeHandler(t *testing.T) {
	cr := newCreds(t)
	ran := 0
	r := gin.New()
	r.POST("/routes", cr.RequireAuthWithRole("admin"), func(c *gin.Context) {
		ran++
		c.JSON(http.StatusCreated, gin.H{"id": "r1"})
	})

	commuter, err := cr.GenerateToken("u1", "commuter")
	require.NoError(t, err)
	w := do(r, http.MethodPost, "/routes", commuter)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"insufficient permissions","code":"insufficient_role"}`, w.Body.String())
	assert.Zero(t, ran)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/routes", "").Code)
	assert.Zero(t, ran)

	admin, err := cr.GenerateToken("u2", "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/routes", admin).Code)
	assert.Equal(t, 1, ran)
}

func TestEnableCORS(t *testing.T) {
	handler := func(allowed []string) *gin.Engine {
		r := gin.New()
		r.Use(EnableCORS(allowed))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	handler(nil).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler([]string{"https://ntc.example"}).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
