package platform_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPI(t *testing.T, handler http.Handler) (*platform.API, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := platform.NewClient(time.Millisecond, zap.NewNop())
	api := platform.NewAPI(client, platform.Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		APIKey:       "testkey",
	}, zap.NewNop()).WithBaseURLs(server.URL, server.URL)

	return api, server
}

func TestGetUsersBatch(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/batch", r.URL.Path)
		assert.Equal(t, "testkey", r.URL.Query().Get("api_key"))
		assert.Equal(t, "1,2,3", r.URL.Query().Get("ids"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"users": [
				{"id": 1, "screen_name": "alice"},
				{"id": 2, "screen_name": "bob"},
				{"id": 3, "screen_name": "carol"}
			],
			"page": 1, "last_page": 1
		}`))
	}))

	list, err := api.GetUsers(context.Background(), platform.UsersQuery{
		IDs: []uint64{1, 2, 3},
	})
	require.NoError(t, err)
	require.Len(t, list.Users, 3)
	assert.Equal(t, "alice", list.Users[0].ScreenName)
	assert.Equal(t, uint64(3), list.Users[2].ID)
}

func TestGetUsersBatchLimit(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ids := make([]uint64, platform.BatchLimit+1)
	for i := range ids {
		ids[i] = uint64(i + 1)
	}

	_, err := api.GetUsers(context.Background(), platform.UsersQuery{IDs: ids})
	require.ErrorIs(t, err, platform.ErrTooManyIDs)
}

func TestGetUserLinksPlaceholder(t *testing.T) {
	t.Parallel()

	// The platform returns the integer 0 instead of an empty array when a
	// user has no links.
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42/links", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"links": 0, "page": 1, "last_page": 1}`))
	}))

	list, err := api.GetUserLinks(context.Background(), 42, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, list.Links)
	assert.Equal(t, 1, list.LastPage)
}

func TestGetUserLinks(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"links": [{"title": "My blog", "url": "https://example.com/"}],
			"page": 1, "last_page": 2
		}`))
	}))

	list, err := api.GetUserLinks(context.Background(), 42, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Links, 1)
	assert.Equal(t, "https://example.com/", list.Links[0].URL)
	assert.Equal(t, 2, list.LastPage)
}

func TestGetCurrentUser(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "token sekrit", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 7, "screen_name": "dave"}`))
	}))

	user, err := api.GetCurrentUser(context.Background(), "sekrit")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), user.ID)
	assert.Equal(t, "dave", user.ScreenName)
}

func TestCallRejectsNonJSON(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))

	_, err := api.GetUserProjects(context.Background(), 42, 1, 50)
	require.ErrorIs(t, err, platform.ErrNotJSON)
}

func TestGetNewUserIDs(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hackers", r.URL.Path)
		assert.Equal(t, "newest", r.URL.Query().Get("sort"))
		assert.Equal(t, "3", r.URL.Query().Get("page"))

		_, _ = w.Write([]byte(`<html><body>
			<a href="/hacker/123456" class="hacker-image"><img src=""></a>
			<a href="/hacker/123455" class="hacker-image"><img src=""></a>
			<a href="/hacker/99" class="hacker-link">not an avatar</a>
		</body></html>`))
	}))

	ids, err := api.GetNewUserIDs(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{123456, 123455}, ids)
}

func TestGetProjectTeam(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/5/team", r.URL.Path)
		assert.Equal(t, "influence", r.URL.Query().Get("sortby"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"team": [{"user": {"id": 11, "screen_name": "erin"}}],
			"page": 1, "last_page": 1
		}`))
	}))

	list, err := api.GetProjectTeam(context.Background(), 5, platform.UserSortInfluence, 1, 50)
	require.NoError(t, err)
	require.Len(t, list.Team, 1)
	assert.Equal(t, uint64(11), list.Team[0].User.ID)
}
