package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func corsEcho() *echo.Echo {
	e := echo.New()
	e.Use(SecureCORS())
	e.GET("/api/accounts", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func corsRequest(e *echo.Echo, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/accounts", nil)
	req.Header.Set("Origin", origin)
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSecureCORS_AllowedOrigin(t *testing.T) {
	os.Setenv("ALLOWED_ORIGINS", "https://crm.example.com,http://localhost:3000")
	defer os.Unsetenv("ALLOWED_ORIGINS")

	rec := corsRequest(corsEcho(), http.MethodGet, "https://crm.example.com")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://crm.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureCORS_DisallowedOriginGetsNoHeader(t *testing.T) {
	os.Setenv("ALLOWED_ORIGINS", "https://crm.example.com")
	defer os.Unsetenv("ALLOWED_ORIGINS")

	rec := corsRequest(corsEcho(), http.MethodGet, "https://evil.example.net")

	// The request itself still runs; the browser enforces the missing header.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureCORS_Preflight(t *testing.T) {
	os.Setenv("ALLOWED_ORIGINS", "https://crm.example.com")
	defer os.Unsetenv("ALLOWED_ORIGINS")

	rec := corsRequest(corsEcho(), http.MethodOptions, "https://crm.example.com")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://crm.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestSecureCORS_DefaultsToLocalhost(t *testing.T) {
	os.Unsetenv("ALLOWED_ORIGINS")

	rec := corsRequest(corsEcho(), http.MethodGet, "http://localhost:3000")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureCORS_ProductionStripsWildcard(t *testing.T) {
	os.Setenv("ALLOWED_ORIGINS", "*,https://crm.example.com")
	os.Setenv("APP_ENV", "production")
	defer os.Unsetenv("ALLOWED_ORIGINS")
	defer os.Unsetenv("APP_ENV")

	rec := corsRequest(corsEcho(), http.MethodGet, "https://crm.example.com")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://crm.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureCORS_CredentialsAllowed(t *testing.T) {
	os.Setenv("ALLOWED_ORIGINS", "https://crm.example.com")
	defer os.Unsetenv("ALLOWED_ORIGINS")

	rec := corsRequest(corsEcho(), http.MethodGet, "https://crm.example.com")

	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
