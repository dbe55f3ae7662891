package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/campusgate/internal/config"
	"github.com/jmcleod/campusgate/storage/sealed"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Addr:       ":0",
		Env:        "development",
		LogLevel:   "debug",
		Storage:    config.StorageMemory,
		Cache:      config.CacheNone,
		BackendURL: backendURL,
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNewApp_Routes(t *testing.T) {
	lms := httptest.NewServer(http.NotFoundHandler())
	defer lms.Close()

	a, err := newApp(context.Background(), testConfig(t, lms.URL), zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	rec := get(t, a.handler, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	rec = get(t, a.handler, "/api/v1/session")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":null,"tenant":null,"isAuthenticated":false}`, rec.Body.String())

	rec = get(t, a.handler, "/dashboard")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?from=%2Fdashboard", rec.Header().Get("Location"))

	rec = get(t, a.handler, "/login")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<meta name="csp-nonce"`)
	assert.Contains(t, rec.Header().Values("Set-Cookie")[0], "campusgate_browser=")

	rec = get(t, a.handler, "/api/v1/openapi.yaml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "openapi:"))
}

func TestOpenStorage_BoltSealed(t *testing.T) {
	cfg := testConfig(t, "http://lms.test")
	cfg.Storage = config.StorageBolt
	cfg.DataDir = t.TempDir()
	cfg.StorageKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{3}, sealed.KeySize))
	cfg.Cache = config.CacheMemory

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	a.close()

	repo, closeRepo, err := openStorage(context.Background(), cfg)
	require.NoError(t, err)
	closeRepo()
	assert.NotNil(t, repo)
}

func TestOpenCache(t *testing.T) {
	cfg := testConfig(t, "http://lms.test")

	c, closeCache, sweep, err := openCache(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Nil(t, sweep)
	closeCache()

	cfg.Cache = config.CacheMemory
	c, closeCache, sweep, err = openCache(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.NotNil(t, sweep)
	closeCache()
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "campusgate "+Version+"\n", out.String())
}

func TestBanner(t *testing.T) {
	var out bytes.Buffer
	printBanner(&out)
	assert.Contains(t, out.String(), "Version "+Version)
}
