package match_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-events/internal/server"
	"github.com/oggyb/muzz-events/internal/service/match"
)

func newTestApp(t *testing.T) (*fiber.App, *fixture) {
	t.Helper()
	f := setupService(t)
	return server.NewHTTPApp(f.appCtx, server.HTTPOptions{}, match.NewRegistrar(f.appCtx)), f
}

func doJSON(t *testing.T, api *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := api.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestPreferenceEndpoint(t *testing.T) {
	api, _ := newTestApp(t)

	status, body := doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"alice@test.com","preferred_user_email":"adam@test.com","preference":"like"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Preference set to like", body["message"])

	status, body = doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"adam@test.com","preferred_user_email":"alice@test.com","preference":"like"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "active", body["match_status"])

	status, body = doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"adam@test.com","preferred_user_email":"alice@test.com","preference":"wink"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, true, body["error"])
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])

	status, _ = doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"adam@test.com","preference":"like"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"adam@test.com","preferred_user_email":"ghost@test.com","preference":"like"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", body["message"])
}

func TestMatchesEndpointHonoursVisibilityGate(t *testing.T) {
	api, f := newTestApp(t)

	doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"alice@test.com","preferred_user_email":"adam@test.com","preference":"like"}`)
	doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"adam@test.com","preferred_user_email":"alice@test.com","preference":"like"}`)

	status, body := doJSON(t, api, http.MethodGet, "/matches/alice@test.com", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["matches"])

	f.clock.Advance(21 * time.Minute)
	status, body = doJSON(t, api, http.MethodGet, "/matches/alice@test.com", "")
	require.Equal(t, http.StatusOK, status)
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)
	first := matches[0].(map[string]any)
	assert.Equal(t, "adam@test.com", first["email"])
	assert.Equal(t, "matched", first["status"])
	assert.Equal(t, true, first["show_message_button"])

	status, _ = doJSON(t, api, http.MethodGet, "/matches/ghost@test.com", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateMatchStatusEndpoint(t *testing.T) {
	api, f := newTestApp(t)

	doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"alice@test.com","preferred_user_email":"ben@test.com","preference":"save_later"}`)
	doJSON(t, api, http.MethodPost, "/preference",
		`{"user_email":"ben@test.com","preferred_user_email":"alice@test.com","preference":"save_later"}`)
	m := f.pairMatch(t, "alice", "ben")
	require.NotNil(t, m)

	status, body := doJSON(t, api, http.MethodPost, "/update_match_status",
		`{"match_id":`+jsonNumber(m.ID)+`,"user_email":"carl@test.com","decision":"accept"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	status, body = doJSON(t, api, http.MethodPost, "/update_match_status",
		`{"match_id":`+jsonNumber(m.ID)+`,"user_email":"ben@test.com","decision":"reject"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Match rejected successfully", body["message"])
	assert.Equal(t, "deleted", body["status"])

	status, _ = doJSON(t, api, http.MethodPost, "/update_match_status",
		`{"match_id":999,"user_email":"ben@test.com","decision":"accept"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDiscoveryEndpoints(t *testing.T) {
	api, f := newTestApp(t)

	status, body := doJSON(t, api, http.MethodGet, "/match/"+jsonNumber(f.users["adam"].ID), "")
	require.Equal(t, http.StatusOK, status)
	candidates := body["matches"].([]any)
	require.Len(t, candidates, 3)
	assert.Equal(t, "alice@test.com", candidates[0].(map[string]any)["email"])
	first := candidates[0].(map[string]any)
	assert.Equal(t, float64(f.users["alice"].ID), first["user_id"])
	assert.Equal(t, float64(50), first["match_score"])
	assert.Equal(t, []any{"chess", "music"}, first["hobbies"])

	status, _ = doJSON(t, api, http.MethodGet, "/match/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, api, http.MethodGet, "/matches", "")
	require.Equal(t, http.StatusOK, status)
	all := body["matches"].(map[string]any)
	assert.Contains(t, all, jsonNumber(f.users["alice"].ID))
	suggestion := all[jsonNumber(f.users["alice"].ID)].(map[string]any)
	assert.Equal(t, float64(f.users["adam"].ID), suggestion["match_id"])
	assert.Contains(t, suggestion, "score")
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestApp(t)

	status, body := doJSON(t, api, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func jsonNumber(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
