//go:build integration
// +build integration

package integration

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-labs/vigil/backend/internal/config"
	"github.com/vigil-labs/vigil/backend/internal/database"
	"github.com/vigil-labs/vigil/backend/internal/server"
)

// TestPipelineEndToEnd boots the full server against a throwaway database and
// drives real HTTP traffic through the decision pipeline. When
// VIGIL_REDIS_URL is set the rate limiter runs on the distributed store,
// otherwise it exercises the in-process fallback. Gated behind the
// `integration` build tag.
func TestPipelineEndToEnd(t *testing.T) {
	t.Setenv("VIGIL_DB_PATH", filepath.Join(t.TempDir(), "vigil.db"))
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Environment = "test"
	cfg.FrontendDir = ""
	cfg.RedisURL = os.Getenv("VIGIL_REDIS_URL")

	db, err := database.Open(cfg.DatabasePath)
	require.NoError(t, err)

	srv, err := server.New(db, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Engine)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// An obvious scripted client still gets a response, never a hard error:
	// the pipeline either passes it through or serves decoy content.
	req, err := http.NewRequest("GET", ts.URL+"/api/v1/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "python-requests/2.31")
	req.Header.Set("X-Visitor-ID", "integration-bot")
	botResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer botResp.Body.Close()
	assert.Less(t, botResp.StatusCode, 500)

	// The auth class budget is small; hammering login must eventually 429.
	limited := false
	for i := 0; i < 30; i++ {
		r, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", nil)
		require.NoError(t, err)
		r.Body.Close()
		if r.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "auth endpoint never rate limited")
}
