// Package auth verifies staff bearer tokens on the API. Token issuance
// belongs to the identity service; this package only validates.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// StaffContextKey is the echo context key the verified claims are stored
// under
const StaffContextKey = "staff"

// StaffClaims represents the claims in staff access tokens
type StaffClaims struct {
	StaffID string `json:"staff_id"`
	Name    string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// RequireAuth creates middleware that rejects requests without a valid
// Bearer token
func RequireAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			claims, err := validateToken(tokenParts[1], secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(StaffContextKey, claims)
			return next(c)
		}
	}
}

// StaffID returns the authenticated staff id from the request context
func StaffID(c echo.Context) string {
	claims, ok := c.Get(StaffContextKey).(*StaffClaims)
	if !ok {
		return ""
	}
	return claims.StaffID
}

func validateToken(tokenString, secret string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if strings.TrimSpace(claims.StaffID) == "" {
		return nil, fmt.Errorf("token missing staff_id")
	}
	return claims, nil
}
