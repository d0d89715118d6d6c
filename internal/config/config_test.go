package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":8080"
  cors_origins: ["https://shop.example.com"]
database:
  driver: memory
auth:
  jwt_secret: from-file
  token_ttl: 2h
log:
  format: json
`), 0o600))

	t.Setenv("STOREFRONT_AUTH_JWT_SECRET", "from-env")
	t.Setenv("STOREFRONT_AUTH_COOKIE_SECURE", "true")
	t.Setenv("STOREFRONT_HTTP_SHUTDOWN_TIMEOUT", "10s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "token", cfg.Auth.CookieName)
}

func TestApplyEnv_BadDuration(t *testing.T) {
	cfg := Default()
	env := map[string]string{"STOREFRONT_AUTH_TOKEN_TTL": "forever"}
	err := applyEnv(&cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Error(t, err)
}

func TestApplyEnv_CORSList(t *testing.T) {
	cfg := Default()
	env := map[string]string{"STOREFRONT_HTTP_CORS_ORIGINS": "https://a.example, ,https://b.example"}
	require.NoError(t, applyEnv(&cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "secret is required")

	cfg.Auth.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.JWTSecret = "s"
	cfg.Auth.TokenTTL = 0
	assert.Error(t, cfg.Validate())
}
