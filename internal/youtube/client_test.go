package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/cache"
)

func videosServer(t *testing.T, status int, body string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/videos"), r.URL.Path)
		assert.Equal(t, "yt-key", r.URL.Query().Get("key"))
		assert.Equal(t, "contentDetails", r.URL.Query().Get("part"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDuration(t *testing.T) {
	var calls int32
	srv := videosServer(t, http.StatusOK,
		`{"items":[{"id":"dQw4w9WgXcQ","contentDetails":{"duration":"PT1H2M10S"}}]}`, &calls)

	client, err := NewClient(context.Background(), Config{APIKey: "yt-key", Endpoint: srv.URL + "/"}, nil, nil)
	require.NoError(t, err)

	seconds, err := client.Duration(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, float64(3730), seconds)
}

func TestDurationUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	defer c.Close()

	var calls int32
	srv := videosServer(t, http.StatusOK,
		`{"items":[{"id":"abc","contentDetails":{"duration":"PT4M5S"}}]}`, &calls)

	client, err := NewClient(context.Background(), Config{APIKey: "yt-key", Endpoint: srv.URL + "/", CacheTTL: time.Hour}, c, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		seconds, err := client.Duration(context.Background(), "abcdefghijk")
		require.NoError(t, err)
		assert.Equal(t, float64(245), seconds)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDurationNotFound(t *testing.T) {
	var calls int32
	srv := videosServer(t, http.StatusOK, `{"items":[]}`, &calls)

	client, err := NewClient(context.Background(), Config{APIKey: "yt-key", Endpoint: srv.URL + "/"}, nil, nil)
	require.NoError(t, err)

	_, err = client.Duration(context.Background(), "missing0000")
	assert.ErrorIs(t, err, apperror.NotFound)
	assert.EqualError(t, err, "YouTube video not found")
}

func TestDurationProviderError(t *testing.T) {
	var calls int32
	srv := videosServer(t, http.StatusForbidden,
		`{"error":{"code":403,"message":"quota exceeded"}}`, &calls)

	client, err := NewClient(context.Background(), Config{APIKey: "yt-key", Endpoint: srv.URL + "/"}, nil, nil)
	require.NoError(t, err)

	_, err = client.Duration(context.Background(), "abcdefghijk")
	assert.ErrorIs(t, err, apperror.Provider)
	assert.EqualError(t, err, "Failed to fetch YouTube metadata")
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{}, nil, nil)
	assert.ErrorIs(t, err, apperror.MissingCredential)
	assert.EqualError(t, err, "API key is required")
}

func TestParseISODuration(t *testing.T) {
	tests := map[string]int{
		"PT1H2M10S": 3730,
		"PT45S":     45,
		"PT3M":      180,
		"PT2H":      7200,
		"P1D":       0,
		"":          0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseISODuration(in), in)
	}
}
