// Package auth provides the API-key gate for the case-data API. Callers
// present the shared key in the X-API-Key header; anything else is rejected
// before it reaches a handler.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIKeyHeader is the header carrying the caller's key.
const APIKeyHeader = "X-API-Key"

// APIKey returns middleware that rejects requests whose X-API-Key header does
// not match securityKey. Comparison is constant-time over SHA-256 digests so
// key length is not observable either.
func APIKey(securityKey string) echo.MiddlewareFunc {
	want := sha256.Sum256([]byte(securityKey))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := sha256.Sum256([]byte(c.Request().Header.Get(APIKeyHeader)))
			if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "could not validate API key")
			}
			return next(c)
		}
	}
}
