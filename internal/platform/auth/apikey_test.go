package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func doRequest(t *testing.T, securityKey, presentedKey string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, APIKey(securityKey))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if presentedKey != "" {
		req.Header.Set(APIKeyHeader, presentedKey)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKey_Valid(t *testing.T) {
	rec := doRequest(t, "s3cret", "s3cret")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAPIKey_Wrong(t *testing.T) {
	rec := doRequest(t, "s3cret", "guess")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestAPIKey_Missing(t *testing.T) {
	rec := doRequest(t, "s3cret", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
