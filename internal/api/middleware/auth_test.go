package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAuth(t *testing.T, path, authHeader string) (int, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)

	handler := APIKeyAuth(nil)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	err := handler(c)
	return rec.Code, err
}

func TestAPIKeyAuth_RejectsMissingHeader(t *testing.T) {
	os.Setenv("API_KEY", "sync-admin-key")
	defer os.Unsetenv("API_KEY")

	_, err := runAuth(t, "/api/accounts", "")

	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAPIKeyAuth_RejectsWrongKey(t *testing.T) {
	os.Setenv("API_KEY", "sync-admin-key")
	defer os.Unsetenv("API_KEY")

	_, err := runAuth(t, "/internal/sync/1", "Bearer guessed-key")

	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAPIKeyAuth_AcceptsValidKey(t *testing.T) {
	os.Setenv("API_KEY", "sync-admin-key")
	defer os.Unsetenv("API_KEY")

	code, err := runAuth(t, "/api/accounts", "Bearer sync-admin-key")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPIKeyAuth_ProbesBypassAuth(t *testing.T) {
	os.Setenv("API_KEY", "sync-admin-key")
	defer os.Unsetenv("API_KEY")

	for _, path := range []string{"/health", "/ready"} {
		code, err := runAuth(t, path, "")

		require.NoError(t, err, "path %s", path)
		assert.Equal(t, http.StatusOK, code, "path %s", path)
	}
}

func TestAPIKeyAuth_DisabledWithoutConfiguredKey(t *testing.T) {
	os.Unsetenv("API_KEY")

	code, err := runAuth(t, "/api/accounts", "")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}
