package config_test

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/units"
)

func noEnv(string) (string, bool) { return "", false }

func TestCanParseValidConfiguration(t *testing.T) {
	t.Parallel()

	configFile := path.Join(t.TempDir(), "config.yml")

	require.NoError(
		t,
		os.WriteFile(
			configFile,
			[]byte(`
host: 0.0.0.0
port: 9000
admin_interface: localhost:8192
metrics: false
profiling: true
log:
  level: error
  format: console
store:
  path: ./data
  read_cache_size: 16MiB
auth:
  secret: test-secret
  token_ttl: 30m
cache_policy:
  owned_max_age: 120
  public_max_age: 600
  collection_max_age: 15
  search_max_age: 5`),
			0o600,
		),
	)

	conf, err := config.Parse(configFile, noEnv)
	require.NoError(t, err)
	require.Equal(
		t,
		&config.Config{
			Host:            "0.0.0.0",
			Port:            9000,
			AdminInterface:  "localhost:8192",
			EnableMetrics:   false,
			EnableProfiling: true,
			Log:             config.Log{"error", "console"},
			Store:           config.Store{"./data", units.Bytes{Bytes: 16 * 1024 * 1024}},
			Auth:            config.Auth{"test-secret", 30 * time.Minute},
			CachePolicy: config.CachePolicy{
				OwnedMaxAgeSeconds:      120,
				PublicMaxAgeSeconds:     600,
				CollectionMaxAgeSeconds: 15,
				SearchMaxAgeSeconds:     5,
			},
		},
		conf,
	)
}

func TestRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	configFile := path.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(configFile, []byte("not_a_field: yes"), 0o600))

	_, err := config.Parse(configFile, noEnv)
	require.Error(t, err)
}

func TestReturnsDefaultsWhenFileIsMissing(t *testing.T) {
	t.Parallel()

	conf, err := config.Parse(path.Join(t.TempDir(), "missing.yml"), noEnv)
	require.Error(t, err)
	require.Equal(t, config.Default(noEnv), conf)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"ACCOUNTD_LOG_LEVEL":        "trace",
		"ACCOUNTD_LOG_FORMAT":       "console",
		"ACCOUNTD_STORE_PATH":       "/tmp/store",
		"ACCOUNTD_HOST":             "0.0.0.0",
		"ACCOUNTD_ADMIN_INTERFACE":  "localhost:9999",
		"ACCOUNTD_AUTH_SECRET":      "from-env",
		"ACCOUNTD_ENABLE_PROFILING": "1",
		"ACCOUNTD_READ_CACHE_SIZE":  "8MiB",
	}
	conf := config.Default(func(key string) (string, bool) {
		val, ok := env[key]
		return val, ok
	})

	require.Equal(t, config.Log{"trace", "console"}, conf.Log)
	require.Equal(t, "/tmp/store", conf.Store.Path)
	require.Equal(t, "0.0.0.0", conf.Host)
	require.Equal(t, "localhost:9999", conf.AdminInterface)
	require.Equal(t, "from-env", conf.Auth.Secret)
	require.Equal(t, int64(8*1024*1024), conf.Store.ReadCacheSize.Bytes)
	require.True(t, conf.EnableProfiling)
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Parallel()

	conf := config.Default(noEnv)
	require.Error(t, conf.Validate())

	conf.Auth.Secret = "secret"
	require.NoError(t, conf.Validate())
}
