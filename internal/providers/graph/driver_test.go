package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
)

func testAccount() *models.EmailAccount {
	return &models.EmailAccount{
		ID:            1,
		Provider:      models.ProviderGraph,
		EmailAddress:  "user@example.com",
		CredentialRef: "cred-1",
	}
}

func testDriver(t *testing.T, handler http.Handler) (*Driver, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	creds := providers.NewStaticCredentialSource()
	creds.PutToken("cred-1", &oauth2.Token{AccessToken: "token", Expiry: time.Now().Add(time.Hour)})

	driver := New(creds, WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	return driver, server
}

func messageJSON(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"conversationId":   "conv-" + id,
		"subject":          "Subject " + id,
		"bodyPreview":      "preview",
		"isRead":           false,
		"receivedDateTime": "2026-08-30T10:00:00Z",
		"from": map[string]interface{}{
			"emailAddress": map[string]string{"name": "Alice", "address": "alice@example.com"},
		},
		"toRecipients": []interface{}{
			map[string]interface{}{
				"emailAddress": map[string]string{"name": "Bob", "address": "bob@example.com"},
			},
		},
	}
}

func TestFetchHistorical_PagesThroughNextLinks(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/me/mailFolders/inbox/messages/delta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value":           []interface{}{messageJSON("m1"), messageJSON("m2")},
			"@odata.nextLink": serverURL + "/page2",
		})
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value":            []interface{}{messageJSON("m3")},
			"@odata.deltaLink": serverURL + "/delta-final",
		})
	})

	driver, server := testDriver(t, mux)
	serverURL = server.URL

	// First page
	page, err := driver.FetchHistorical(context.Background(), testAccount(), "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, serverURL+"/page2", page.NextCursor)
	assert.Equal(t, "m1", page.Messages[0].ProviderMessageID)
	assert.Equal(t, "conv-m1", page.Messages[0].ProviderThreadID)
	assert.Equal(t, "alice@example.com", page.Messages[0].SenderEmail)

	// Resume from the page cursor
	page, err = driver.FetchHistorical(context.Background(), testAccount(), page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, serverURL+"/delta-final", page.NextCursor)
}

func TestFetchIncremental_GoneMeansCursorExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/delta", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"error":{"code":"syncStateNotFound"}}`)
	})

	driver, server := testDriver(t, mux)

	_, err := driver.FetchIncremental(context.Background(), testAccount(), server.URL+"/delta")

	assert.ErrorIs(t, err, apperrors.ErrCursorExpired)
}

func TestFetchIncremental_UnauthorizedMeansCredentialsExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/delta", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	driver, server := testDriver(t, mux)

	_, err := driver.FetchIncremental(context.Background(), testAccount(), server.URL+"/delta")

	assert.ErrorIs(t, err, apperrors.ErrCredentialsExpired)
}

func TestFetchIncremental_ServerErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/delta", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	driver, server := testDriver(t, mux)

	_, err := driver.FetchIncremental(context.Background(), testAccount(), server.URL+"/delta")

	assert.ErrorIs(t, err, apperrors.ErrTransient)
}

func TestFetchIncremental_EmptyCursorExpired(t *testing.T) {
	driver, _ := testDriver(t, http.NewServeMux())

	_, err := driver.FetchIncremental(context.Background(), testAccount(), "")

	assert.ErrorIs(t, err, apperrors.ErrCursorExpired)
}

func TestFetchIncremental_QuietDeltaAdvancesCursor(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/delta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value":            []interface{}{},
			"@odata.deltaLink": serverURL + "/delta-next",
		})
	})

	driver, server := testDriver(t, mux)
	serverURL = server.URL

	page, err := driver.FetchIncremental(context.Background(), testAccount(), server.URL+"/delta")

	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
	assert.Equal(t, serverURL+"/delta-next", page.NextCursor)
}

func TestRegisterPush_CreatesSubscriptionWithClientState(t *testing.T) {
	var received subscriptionRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id":                 "sub-42",
			"expirationDateTime": time.Now().UTC().Add(70 * time.Hour).Format(time.RFC3339),
		})
	})

	driver, _ := testDriver(t, mux)

	reg, err := driver.RegisterPush(context.Background(), testAccount(), "https://crm.example.com/webhooks/graph")

	require.NoError(t, err)
	assert.Equal(t, "sub-42", reg.SubscriptionID)
	assert.NotEmpty(t, reg.ClientState)
	assert.Equal(t, received.ClientState, reg.ClientState)
	assert.Equal(t, "created", received.ChangeType)
	assert.Equal(t, "https://crm.example.com/webhooks/graph", received.NotificationURL)
	require.NotNil(t, reg.ExpiresAt)
}

func TestDriver_Capabilities(t *testing.T) {
	driver := New(providers.NewStaticCredentialSource())

	assert.Equal(t, models.ProviderGraph, driver.Kind())
	assert.True(t, driver.SupportsPush())
}
