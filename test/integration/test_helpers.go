//go:build integration

package integration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"go-auth-server/internal/app"
	"go-auth-server/internal/config"
	"go-auth-server/internal/logger"
)

// newServer runs the full stack against the Postgres in INTEGRATION_DATABASE_URL and an
// in-process Redis.
func newServer(t *testing.T, tweak func(*config.Config)) (*httptest.Server, *app.Core) {
	t.Helper()

	dsn := os.Getenv("INTEGRATION_DATABASE_URL")
	if dsn == "" {
		t.Skip("INTEGRATION_DATABASE_URL not set")
	}
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		ServerPort:             "0",
		RequestTimeout:         10 * time.Second,
		CORSOrigins:            []string{"*"},
		LogFormat:              logger.FormatJSON,
		LogLevel:               "error",
		DatabaseURL:            dsn,
		DBMaxConns:             4,
		DBMinConns:             1,
		RedisAddr:              mr.Addr(),
		JWTSecret:              "integration-secret-0123456789abcdef",
		JWTIssuer:              "integration",
		AllowPlainPKCE:         true,
		SecretEncryptionKey:    base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		LoginMaxAttempts:       3,
		LoginLockoutWindow:     time.Minute,
		AuthRealm:              "api",
		HMACTimestampHeader:    "Timestamp",
		HMACNonceHeader:        "Nonce",
		HMACTimestampThreshold: 300 * time.Second,
		HMACMaxBodyBytes:       1 << 20,
		ThrottleEnabled:        true,
		ThrottleAnonRate:       "1000/m",
		ThrottleBurstRate:      "1000/m",
		ThrottleSustainedRate:  "10000/d",
		AuthRateLimitRPM:       1000,
		MetricsEnabled:         true,
	}
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, cfg.Validate())

	log := logger.New(io.Discard, cfg.LogFormat, cfg.LogLevel)
	core, err := app.Bootstrap(context.Background(), cfg, log)
	require.NoError(t, err)

	h, cleanup, err := app.NewHandler(core)
	require.NoError(t, err)

	server := httptest.NewServer(h)
	t.Cleanup(func() {
		server.Close()
		cleanup()
		core.Close()
	})
	return server, core
}

func basicAuth(id string, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(id+":"+secret))
}

func postForm(t *testing.T, target string, form url.Values, authorization string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getWith(t *testing.T, target string, authorization string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
