package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	"github.com/lodestone-crm/lodestone-backend/tests/mocks"
)

func newThreadHandlerTest() (*ThreadHandler, *mocks.MockThreadRepository, *mocks.MockAccountRepository) {
	threadRepo := new(mocks.MockThreadRepository)
	accountRepo := new(mocks.MockAccountRepository)
	return NewThreadHandler(threadRepo, accountRepo), threadRepo, accountRepo
}

func TestThreadHandler_List_Success(t *testing.T) {
	handler, threadRepo, accountRepo := newThreadHandlerTest()

	accountRepo.On("GetByID", mock.Anything, uint(1)).Return(&models.EmailAccount{ID: 1}, nil)
	threads := []models.Thread{{ID: 3, Subject: "budget", MessageCount: 4}}
	threadRepo.On("ListByAccount", mock.Anything, uint(1), 20, 0).Return(threads, int64(1), nil)

	c, rec := newJSONContext(http.MethodGet, "/api/accounts/1/threads", "")
	c.SetParamNames("account_id")
	c.SetParamValues("1")

	err := handler.List(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message_count":4`)
}

func TestThreadHandler_List_AccountNotFound(t *testing.T) {
	handler, _, accountRepo := newThreadHandlerTest()

	accountRepo.On("GetByID", mock.Anything, uint(9)).Return(nil, repository.ErrNotFound)

	c, rec := newJSONContext(http.MethodGet, "/api/accounts/9/threads", "")
	c.SetParamNames("account_id")
	c.SetParamValues("9")

	err := handler.List(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThreadHandler_Get_Success(t *testing.T) {
	handler, threadRepo, _ := newThreadHandlerTest()

	threadRepo.On("GetByID", mock.Anything, uint(3)).Return(&models.Thread{ID: 3, Subject: "budget"}, nil)

	c, rec := newJSONContext(http.MethodGet, "/api/threads/3", "")
	c.SetParamNames("id")
	c.SetParamValues("3")

	err := handler.Get(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subject":"budget"`)
}

func TestThreadHandler_Get_NotFound(t *testing.T) {
	handler, threadRepo, _ := newThreadHandlerTest()

	threadRepo.On("GetByID", mock.Anything, uint(99)).Return(nil, repository.ErrNotFound)

	c, rec := newJSONContext(http.MethodGet, "/api/threads/99", "")
	c.SetParamNames("id")
	c.SetParamValues("99")

	err := handler.Get(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
