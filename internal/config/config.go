package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/accountd/accountd/internal/units"
)

type Log struct {
	Level  string
	Format string
}

type Store struct {
	Path string
	// ReadCacheSize bounds the in-memory read-through cache.
	ReadCacheSize units.Bytes `yaml:"read_cache_size"`
}

type Auth struct {
	// Secret signs the access tokens. The server refuses to start without it
	// unless ACCOUNTD_AUTH_SECRET provides one.
	Secret   string
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// CachePolicy is the configurable part of the cache-control table. All
// values are in seconds; zero renders the class uncacheable.
type CachePolicy struct {
	OwnedMaxAgeSeconds      int `yaml:"owned_max_age"`
	PublicMaxAgeSeconds     int `yaml:"public_max_age"`
	CollectionMaxAgeSeconds int `yaml:"collection_max_age"`
	SearchMaxAgeSeconds     int `yaml:"search_max_age"`
}

type Config struct {
	Host            string
	Port            uint16
	AdminInterface  string `yaml:"admin_interface"`
	EnableMetrics   bool   `yaml:"metrics"`
	EnableProfiling bool   `yaml:"profiling"`
	Log             Log
	Store           Store
	Auth            Auth
	CachePolicy     CachePolicy `yaml:"cache_policy"`
}

func getBaseConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           8080,
		AdminInterface: "localhost:8081",
		EnableMetrics:  true,
		Log:            Log{zerolog.LevelInfoValue, "json"},
		Store:          Store{"_data/", units.Bytes{Bytes: 32 * 1024 * 1024}},
		Auth:           Auth{"", time.Hour},
		CachePolicy: CachePolicy{
			OwnedMaxAgeSeconds:      60,
			PublicMaxAgeSeconds:     300,
			CollectionMaxAgeSeconds: 30,
			SearchMaxAgeSeconds:     10,
		},
	}
}

func Parse(configPath string, lookupEnv func(string) (string, bool)) (*Config, error) {
	c := getBaseConfig()

	fp, err := os.Open(configPath) //nolint:gosec
	if err != nil {
		return c, err
	}

	decoder := yaml.NewDecoder(fp)
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return c, err
	}

	return c, applyOverrides(c, lookupEnv)
}

func Default(lookupEnv func(string) (string, bool)) *Config {
	conf := getBaseConfig()
	// Overrides are best-effort here, a malformed value keeps the default.
	_ = applyOverrides(conf, lookupEnv)
	return conf
}

func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is not set and ACCOUNTD_AUTH_SECRET is empty")
	}
	return nil
}

func applyOverrides(conf *Config, lookupEnv func(string) (string, bool)) error {
	if val, ok := lookupEnv("ACCOUNTD_ENABLE_PROFILING"); ok && val == "1" {
		conf.EnableProfiling = true
	}

	if val, ok := lookupEnv("ACCOUNTD_LOG_LEVEL"); ok {
		conf.Log.Level = val
	}

	if val, ok := lookupEnv("ACCOUNTD_LOG_FORMAT"); ok {
		conf.Log.Format = val
	}

	if val, ok := lookupEnv("ACCOUNTD_STORE_PATH"); ok {
		conf.Store.Path = val
	}

	if val, ok := lookupEnv("ACCOUNTD_READ_CACHE_SIZE"); ok {
		size, err := units.DecodeBytes(val)
		if err != nil {
			return fmt.Errorf("ACCOUNTD_READ_CACHE_SIZE: %w", err)
		}
		conf.Store.ReadCacheSize = size
	}

	if val, ok := lookupEnv("ACCOUNTD_HOST"); ok {
		conf.Host = val
	}

	if val, ok := lookupEnv("ACCOUNTD_ADMIN_INTERFACE"); ok {
		conf.AdminInterface = val
	}

	if val, ok := lookupEnv("ACCOUNTD_AUTH_SECRET"); ok {
		conf.Auth.Secret = val
	}

	return nil
}
