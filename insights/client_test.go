package insights_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/neayi/discoursesync/insights"
	"github.com/stretchr/testify/require"
)

func TestFollowers(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/page/3/followers", r.URL.Path)
		require.Equal(t, "follow", r.URL.Query().Get("type"))

		_, err := w.Write([]byte(`{"data": [
			{"user": {"name": "Alice Martin", "discourse_username": "alice.martin"}},
			{"user": {"name": "No Link", "discourse_username": ""}}
		]}`))
		require.NoError(t, err)
	}))
	t.Cleanup(srv.Close)

	client := insights.NewClient(srv.URL)

	followers, err := client.Followers(ctx, 3)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	require.Equal(t, "alice.martin", followers[0].DiscourseUsername)
	require.Empty(t, followers[1].DiscourseUsername)
}

func TestFollowersServerError(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := insights.NewClient(srv.URL)

	_, err := client.Followers(ctx, 3)
	require.Error(t, err)
}
