package middleware

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"bus_tracker/internal/apperr"
)

// Context keys set by RequireAuth.
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

const minSecretLen = 16

// Claims is the token payload: the user id travels in sub.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Credentials issues and checks HS256 bearer tokens.
type Credentials struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCredentials(secret string, ttl time.Duration) (*Credentials, error) {
	if len(secret) < minSecretLen {
		return nil, errors.New("JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("JWT ttl must be positive")
	}
	return &Credentials{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (cr *Credentials) GenerateToken(userID, role string) (string, error) {
	now := cr.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cr.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cr.secret)
}

func (cr *Credentials) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return cr.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cr.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Auth("token_expired", "token has expired")
		}
		return nil, apperr.Auth("invalid_token", "invalid token")
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, apperr.Auth("invalid_token", "invalid token claims")
	}
	return claims, nil
}

// authenticate checks the bearer token and stores its claims on c. It aborts
// c itself and reports false when the token is missing or invalid.
func (cr *Credentials) authenticate(c *gin.Context) (*Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		abort(c, apperr.Auth("missing_token", "missing or invalid Authorization header"))
		return nil, false
	}

	claims, err := cr.ValidateToken(strings.TrimSpace(tokenString))
	if err != nil {
		abort(c, err)
		return nil, false
	}

	c.Set(UserIDKey, claims.Subject)
	c.Set(RoleKey, claims.Role)
	return claims, true
}

// RequireAuth ensures a valid JWT is present
func (cr *Credentials) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := cr.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// OptionalAuth records the caller when a bearer token is sent and lets
// anonymous requests through. A token that is sent but invalid is rejected.
func (cr *Credentials) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			if _, ok := cr.authenticate(c); !ok {
				return
			}
		}
		c.Next()
	}
}

// RequireAuthWithRole ensures the JWT is valid and the user has one of roles.
// The role is checked before any downstream handler runs.
func (cr *Credentials) RequireAuthWithRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := cr.authenticate(c)
		if !ok {
			return
		}
		if !slices.Contains(roles, claims.Role) {
			abort(c, apperr.Forbidden("insufficient_role", "insufficient permissions"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller's id, or "" on public routes.
func UserID(c *gin.Context) string { return c.GetString(UserIDKey) }

// Role returns the authenticated caller's role, or "".
func Role(c *gin.Context) string { return c.GetString(RoleKey) }

func abort(c *gin.Context, err error) {
	code, msg := apperr.Describe(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(apperr.KindOf(err)), gin.H{"error": msg, "code": code})
}
