// Package auth resolves the caller identity from a bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"appointly/backend/internal/domain"
)

type contextKey string

const callerKey contextKey = "caller"

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string
}

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrSigningKeyMissing = errors.New("jwt signing key is not configured")
)

// Validate reports a missing signing key. An empty HMAC key would let anyone
// mint tokens for any role.
func (c Config) Validate() error {
	if len(c.SigningKey) == 0 {
		return ErrSigningKeyMissing
	}
	return nil
}

func WithCaller(ctx context.Context, c domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerKey).(domain.Caller)
	return c, ok
}

// ParseToken validates an HS256 token and returns the caller it names.
func ParseToken(cfg Config, tokenStr string) (domain.Caller, error) {
	if cfg.Validate() != nil {
		return domain.Caller{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Caller{}, ErrInvalidToken
	}

	role, ok := domain.ParseRole(claims.Role)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return domain.Caller{}, ErrInvalidToken
	}
	return domain.Caller{ID: claims.Subject, Role: role}, nil
}

// SignToken issues a token for caller valid for ttl.
func SignToken(cfg Config, caller domain.Caller, ttl time.Duration) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if !caller.Valid() {
		return "", fmt.Errorf("caller id and a known role are required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(caller.Role),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

// Middleware rejects requests without a valid bearer token and stores the
// caller on the request context.
func Middleware(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			caller, err := ParseToken(cfg, strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}
