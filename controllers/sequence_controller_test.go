package controller

import (
	"io"
	"net/http"
	"testing"

	"creatorbook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToSequence(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/sequence/add", map[string]string{
		"email":     "manual@example.com",
		"firstName": "Ada",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, "User added to email sequence successfully", payload["message"])
	assert.Equal(t, "manual@example.com", payload["email"])
	assert.Equal(t, "Ada", payload["firstName"])

	var subscriber models.SequenceSubscriber
	require.NoError(t, env.db.Where("email = ?", "manual@example.com").
		First(&subscriber).Error)
	assert.Equal(t, `["manual"]`, subscriber.Tags)
}

func TestAddToSequenceRequiresEmail(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/sequence/add", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, "Email is required", payload["error"])
}

func TestProcessSequenceEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/sequence/add", map[string]string{
		"email": "due@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodPost, "/sequence/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, "Email sequence processed successfully", payload["message"])
	assert.EqualValues(t, 1, payload["processed"])
	assert.EqualValues(t, 1, payload["sent"])
	assert.EqualValues(t, 0, payload["failed"])

	// The welcome email is step 1 with no delay, so it went out immediately
	sent := env.mailer.lastTo(t)
	assert.Equal(t, "due@example.com", sent.To)
	assert.Contains(t, sent.Subject, "Welcome")
}

func TestSequenceStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/sequence/add", map[string]string{
		"email": "counted@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/sequence/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSON(t, resp)
	stats := payload["stats"].(map[string]interface{})
	assert.EqualValues(t, 1, stats["totalActiveSubscribers"])
	assert.EqualValues(t, 1, stats["pendingEmails"])
	assert.NotEmpty(t, payload["generatedAt"])
}

func TestUnsubscribeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/sequence/add", map[string]string{
		"email": "leaver@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/sequence/unsubscribe?email=leaver@example.com", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, string(body), "Successfully Unsubscribed")

	var subscriber models.SequenceSubscriber
	require.NoError(t, env.db.Where("email = ?", "leaver@example.com").
		First(&subscriber).Error)
	assert.False(t, subscriber.IsActive)
}

func TestUnsubscribeRequiresEmail(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/sequence/unsubscribe", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, "Email parameter is required", payload["error"])
}
