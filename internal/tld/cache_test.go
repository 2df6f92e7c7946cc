package tld_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/tld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testList = `// This is a comment
com
co.uk
// Another comment

org
`

func newListServer(t *testing.T, fetches *atomic.Int32, fail *atomic.Bool) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)

		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte(testList))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestSplitDomain(t *testing.T) {
	t.Parallel()

	var (
		fetches atomic.Int32
		fail    atomic.Bool
	)

	server := newListServer(t, &fetches, &fail)
	cache := tld.NewCache(server.URL, time.Hour, zap.NewNop())

	tests := []struct {
		name     string
		domain   string
		expected []string
	}{
		{
			name:     "subdomains parent first",
			domain:   "foo.bar.example.com",
			expected: []string{"example.com", "bar.example.com", "foo.bar.example.com"},
		},
		{
			name:     "bare domain",
			domain:   "example.co.uk",
			expected: []string{"example.co.uk"},
		},
		{
			name:     "no known suffix",
			domain:   "localhost",
			expected: []string{"localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := cache.SplitDomain(context.Background(), tt.domain)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}

	// All lookups should have shared a single fetch.
	assert.Equal(t, int32(1), fetches.Load())
}

func TestSplitDomainServesStale(t *testing.T) {
	t.Parallel()

	var (
		fetches atomic.Int32
		fail    atomic.Bool
	)

	server := newListServer(t, &fetches, &fail)

	// Zero duration so every lookup attempts a refresh.
	cache := tld.NewCache(server.URL, time.Nanosecond, zap.NewNop())

	_, err := cache.SplitDomain(context.Background(), "example.com")
	require.NoError(t, err)

	fail.Store(true)

	result, err := cache.SplitDomain(context.Background(), "sub.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "sub.example.com"}, result)
}

func TestSplitDomainNoList(t *testing.T) {
	t.Parallel()

	var (
		fetches atomic.Int32
		fail    atomic.Bool
	)

	fail.Store(true)

	server := newListServer(t, &fetches, &fail)
	cache := tld.NewCache(server.URL, time.Hour, zap.NewNop())

	_, err := cache.SplitDomain(context.Background(), "example.com")
	require.ErrorIs(t, err, tld.ErrNoList)
}
