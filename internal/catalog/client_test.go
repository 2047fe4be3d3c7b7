package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		Token:         "secret",
		ContentURL:    srv.URL + "/content/",
		LiveEventsURL: srv.URL + "/live-events/",
		WebURL:        "https://learning.example.com/",
	}), srv
}

func TestSearchSendsTokenAndParams(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/content/", r.URL.Path)
		assert.Equal(t, "python", r.URL.Query().Get("any_topic_slug"))
		assert.Equal(t, "book", r.URL.Query().Get("content_format"))
		assert.Equal(t, "30", r.URL.Query().Get("limit"))
		assert.Equal(t, "Live", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"results":[{"title":"Learning Python","authors":["Mark Lutz"],"topics":[{"name":"Python"}]}]}`))
	})

	items, err := client.Search(context.Background(), Query{TopicSlug: "python", ContentFormat: "book"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Learning Python", items[0].Title)
	assert.Equal(t, []string{"Mark Lutz"}, []string(items[0].Authors))
	assert.Equal(t, []string{"Python"}, []string(items[0].Topics))

	_, err = client.Search(context.Background(), Query{TopicSlug: "python", ContentFormat: "book"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second identical search should be served from cache")
}

func TestSearchErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		client := New(Options{ContentURL: "http://unused.invalid/"})
		_, err := client.Search(context.Background(), Query{TopicSlug: "go"})
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("unauthorized", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := client.Search(context.Background(), Query{TopicSlug: "go"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("server error", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		_, err := client.Search(context.Background(), Query{TopicSlug: "go"})
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusBadGateway, statusErr.Code)
		assert.Equal(t, "boom", statusErr.Body)
	})

	t.Run("empty topic", func(t *testing.T) {
		client := New(Options{Token: "t", ContentURL: "http://unused.invalid/"})
		_, err := client.Search(context.Background(), Query{TopicSlug: "  "})
		assert.Error(t, err)
	})
}

func TestLiveEventsPage(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-10-16", r.URL.Query().Get("start_datetime_after"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"results":[
			{"identifier":"a","title":"A","sessions":[{},{}]},
			{"identifier":"b","title":"B","sessions":"n/a"}
		],"next":"http://next.example/page2"}`))
	})

	first, err := client.FirstLiveEventsURL("2026-10-16")
	require.NoError(t, err)
	assert.Contains(t, first, srv.URL+"/live-events/")

	page, err := client.LiveEventsPage(context.Background(), first)
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	assert.Equal(t, sessionCount(2), page.Results[0].Sessions)
	assert.Equal(t, sessionCount(0), page.Results[1].Sessions)
	assert.Equal(t, "http://next.example/page2", page.Next)
}

func TestCoverURL(t *testing.T) {
	client := New(Options{WebURL: "https://learning.example.com/"})
	assert.Equal(t, "https://learning.example.com/covers/123/400w/", client.CoverURL("/covers/123/"))
	assert.Equal(t, "", client.CoverURL(""))
}
