package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	"github.com/lodestone-crm/lodestone-backend/tests/mocks"
)

func newAccountHandlerTest() (*AccountHandler, *mocks.MockAccountRepository, *mocks.MockMessageRepository, *mocks.MockSyncEngine) {
	accountRepo := new(mocks.MockAccountRepository)
	messageRepo := new(mocks.MockMessageRepository)
	engine := new(mocks.MockSyncEngine)
	handler := NewAccountHandler(accountRepo, messageRepo, engine, "https://crm.example.com")
	return handler, accountRepo, messageRepo, engine
}

func newJSONContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// ==================== Create Tests ====================

func TestAccountHandler_Create_Success(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("Create", mock.Anything, mock.MatchedBy(func(a *models.EmailAccount) bool {
		return a.Provider == models.ProviderGmail &&
			a.EmailAddress == "user@example.com" &&
			a.Active &&
			a.SyncState == models.SyncStateIdle
	})).Return(nil)

	body := `{"tenant_id":"tenant-1","provider":"gmail","email_address":"user@example.com","credential_ref":"cred-1"}`
	c, rec := newJSONContext(http.MethodPost, "/api/accounts", body)

	err := handler.Create(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_Create_UnknownProvider(t *testing.T) {
	handler, _, _, _ := newAccountHandlerTest()

	body := `{"tenant_id":"tenant-1","provider":"exchange","email_address":"user@example.com","credential_ref":"cred-1"}`
	c, rec := newJSONContext(http.MethodPost, "/api/accounts", body)

	err := handler.Create(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountHandler_Create_IMAPRequiresHost(t *testing.T) {
	handler, _, _, _ := newAccountHandlerTest()

	body := `{"tenant_id":"tenant-1","provider":"imap","email_address":"user@example.com","credential_ref":"cred-1"}`
	c, rec := newJSONContext(http.MethodPost, "/api/accounts", body)

	err := handler.Create(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "imap_host")
}

func TestAccountHandler_Create_InvalidEmail(t *testing.T) {
	handler, _, _, _ := newAccountHandlerTest()

	body := `{"tenant_id":"tenant-1","provider":"gmail","email_address":"not-an-email","credential_ref":"cred-1"}`
	c, rec := newJSONContext(http.MethodPost, "/api/accounts", body)

	err := handler.Create(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountHandler_Create_Duplicate(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	body := `{"tenant_id":"tenant-1","provider":"gmail","email_address":"user@example.com","credential_ref":"cred-1"}`
	c, rec := newJSONContext(http.MethodPost, "/api/accounts", body)

	err := handler.Create(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ==================== Get Tests ====================

func TestAccountHandler_Get_IncludesUnreadCount(t *testing.T) {
	handler, accountRepo, messageRepo, _ := newAccountHandlerTest()

	account := &models.EmailAccount{ID: 1, Provider: models.ProviderGmail, EmailAddress: "user@example.com"}
	accountRepo.On("GetByID", mock.Anything, uint(1)).Return(account, nil)
	messageRepo.On("CountUnread", mock.Anything, uint(1)).Return(int64(7), nil)

	c, rec := newJSONContext(http.MethodGet, "/api/accounts/1", "")
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.Get(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unread_count":7`)
}

func TestAccountHandler_Get_NotFound(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("GetByID", mock.Anything, uint(42)).Return(nil, repository.ErrNotFound)

	c, rec := newJSONContext(http.MethodGet, "/api/accounts/42", "")
	c.SetParamNames("id")
	c.SetParamValues("42")

	err := handler.Get(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountHandler_Get_InvalidID(t *testing.T) {
	handler, _, _, _ := newAccountHandlerTest()

	c, rec := newJSONContext(http.MethodGet, "/api/accounts/abc", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := handler.Get(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==================== Delete Tests ====================

func TestAccountHandler_Delete_Deactivates(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("Deactivate", mock.Anything, uint(1)).Return(nil)

	c, rec := newJSONContext(http.MethodDelete, "/api/accounts/1", "")
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.Delete(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	accountRepo.AssertExpectations(t)
}

// ==================== Credential Update Tests ====================

func TestAccountHandler_UpdateCredentials_Success(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("UpdateCredentials", mock.Anything, uint(1), "cred-2").Return(nil)

	c, rec := newJSONContext(http.MethodPut, "/api/accounts/1/credentials", `{"credential_ref":"cred-2"}`)
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.UpdateCredentials(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_UpdateCredentials_RequiresRef(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	c, rec := newJSONContext(http.MethodPut, "/api/accounts/1/credentials", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.UpdateCredentials(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	accountRepo.AssertNotCalled(t, "UpdateCredentials", mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountHandler_UpdateCredentials_NotFound(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("UpdateCredentials", mock.Anything, uint(42), "cred-2").Return(repository.ErrNotFound)

	c, rec := newJSONContext(http.MethodPut, "/api/accounts/42/credentials", `{"credential_ref":"cred-2"}`)
	c.SetParamNames("id")
	c.SetParamValues("42")

	err := handler.UpdateCredentials(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ==================== Realtime Tests ====================

func TestAccountHandler_EnableRealtime_RegistersPush(t *testing.T) {
	handler, _, _, engine := newAccountHandlerTest()

	engine.On("RegisterPush", mock.Anything, uint(1), "https://crm.example.com/webhooks/graph").Return(nil)

	c, rec := newJSONContext(http.MethodPost, "/api/accounts/1/realtime", "")
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.EnableRealtime(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	engine.AssertExpectations(t)
}

func TestAccountHandler_EnableRealtime_PollOnlyProvider(t *testing.T) {
	handler, _, _, engine := newAccountHandlerTest()

	engine.On("RegisterPush", mock.Anything, uint(1), mock.Anything).Return(providers.ErrPushNotSupported)

	c, rec := newJSONContext(http.MethodPost, "/api/accounts/1/realtime", "")
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.EnableRealtime(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountHandler_DisableRealtime(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("SetRealtime", mock.Anything, uint(1), false).Return(nil)

	c, rec := newJSONContext(http.MethodDelete, "/api/accounts/1/realtime", "")
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.DisableRealtime(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	accountRepo.AssertExpectations(t)
}

// ==================== List Tests ====================

func TestAccountHandler_List_Paginated(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accounts := []models.EmailAccount{{ID: 1}, {ID: 2}}
	accountRepo.On("List", mock.Anything, 20, 0).Return(accounts, int64(2), nil)

	c, rec := newJSONContext(http.MethodGet, "/api/accounts", "")

	err := handler.List(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
}

func TestAccountHandler_List_ClampsLimit(t *testing.T) {
	handler, accountRepo, _, _ := newAccountHandlerTest()

	accountRepo.On("List", mock.Anything, 100, 0).Return([]models.EmailAccount{}, int64(0), nil)

	c, rec := newJSONContext(http.MethodGet, "/api/accounts?limit=5000", "")

	err := handler.List(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	accountRepo.AssertExpectations(t)
}
