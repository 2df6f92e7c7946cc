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

func TestClientSpacesRequests(t *testing.T) {
	t.Parallel()

	var timestamps []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		timestamps = append(timestamps, time.Now())
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	interval := 100 * time.Millisecond
	client := platform.NewClient(interval, zap.NewNop())

	for range 3 {
		_, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
		require.NoError(t, err)
	}

	require.Len(t, timestamps, 3)

	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		assert.GreaterOrEqual(t, gap, interval,
			"requests %d and %d arrived %s apart", i-1, i, gap)
	}
}

func TestClientForbidden(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := platform.NewClient(time.Millisecond, zap.NewNop())

	_, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.ErrorIs(t, err, platform.ErrForbidden)
	assert.True(t, client.IsForbidden())
}

func TestClientForbiddenClearedOnSuccess(t *testing.T) {
	t.Parallel()

	status := http.StatusForbidden

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := platform.NewClient(time.Millisecond, zap.NewNop())

	_, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.ErrorIs(t, err, platform.ErrForbidden)
	require.True(t, client.IsForbidden())

	status = http.StatusOK

	_, err = client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	assert.False(t, client.IsForbidden())
}

func TestClientHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := platform.NewClient(time.Millisecond, zap.NewNop())

	_, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, platform.IsGone(err))
	assert.False(t, client.IsForbidden())
}

func TestClientContextCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := platform.NewClient(time.Hour, zap.NewNop())

	// First request goes straight through, second has to wait out the
	// interval and should be interrupted by the context.
	_, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Fetch(ctx, http.MethodGet, server.URL, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
