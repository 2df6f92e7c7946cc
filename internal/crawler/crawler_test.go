package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/platform"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// forbiddenAPI returns an API whose client has just entered a forbidden
// backoff window.
func forbiddenAPI(t *testing.T) *platform.API {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client := platform.NewClient(time.Millisecond, zap.NewNop())
	api := platform.NewAPI(client, platform.Credentials{}, zap.NewNop())

	_, err := api.Fetch(context.Background(), http.MethodGet, server.URL)
	require.ErrorIs(t, err, platform.ErrForbidden)
	require.True(t, api.IsForbidden())

	return api
}

func TestLoopsBackOffWhileForbidden(t *testing.T) {
	t.Parallel()

	cfg := &config.Crawler{
		NewUserFetchInterval:   900,
		OldUserFetchInterval:   900,
		NewCheckInterval:       1,
		DeferredCheckInterval:  15,
		AdminUserFetchInterval: 86400,
		APIBlockedDelay:        86400,
		ProjectID:              1,
		AdminUserIDs:           []uint64{42},
	}

	// No store is wired up: while the client is forbidden, every loop
	// must back off before it touches anything else.
	c := &Crawler{
		api:    forbiddenAPI(t),
		cfg:    cfg,
		logger: zap.NewNop(),
	}

	blocked := time.Duration(cfg.APIBlockedDelay) * time.Second

	tests := []struct {
		name string
		step func(context.Context) time.Duration
	}{
		{"fetch_new_users", c.scanNewUsers},
		{"fetch_historical", c.scanHistoricalUsers},
		{"inspect_new", c.inspectNewUsers},
		{"inspect_deferred", c.inspectDeferredUsers},
		{"refresh_admins", c.refreshAdmins},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, blocked, tt.step(context.Background()))
		})
	}
}
