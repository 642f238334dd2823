// Package config layers the ambient configuration the CLI needs before the
// store can be opened: a config directory (with an override), a base-URL
// override for self-hosted deployments, and OAuth client settings — read
// through viper from environment variables, a config.yaml, and defaults,
// the same precedence order (flags > env/file > defaults) cmd/bd applies.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix viper maps onto config
// keys, e.g. TRACECLI_BASE_URL -> "base-url".
const EnvPrefix = "TRACECLI"

// DefaultControlPlaneURL is the service's default control-plane root.
const DefaultControlPlaneURL = "https://sentry.io/api/0"

// yamlOnlyKeys are settings that gate which store gets opened, so they
// must be readable before any database connection exists. Mirrors
// cmd/bd/config.go's distinction between SQL-backed and yaml-only keys.
var yamlOnlyKeys = map[string]bool{
	"base-url":       true,
	"config-dir":     true,
	"client-id":      true,
	"client-secret":  true,
	"store-addr":     true,
}

// IsYamlOnlyKey reports whether key must be stored in config.yaml rather
// than the SQL-backed defaults table, because it is read before the store
// is opened.
func IsYamlOnlyKey(key string) bool {
	return yamlOnlyKeys[key]
}

// Config is the resolved ambient configuration for one invocation.
type Config struct {
	ConfigDir       string
	BaseURL         string // control-plane URL override; empty means DefaultControlPlaneURL
	StoreAddr       string // non-empty selects server-mode store (TRACECLI_STORE_ADDR)
	ClientID        string
	ClientSecret    string
	v               *viper.Viper
}

// Load resolves the ambient configuration: viper reads environment
// variables (TRACECLI_*), then a config.yaml in the config directory, then
// built-in defaults.
func Load(configDirOverride string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("base-url", "")
	v.SetDefault("store-addr", "")
	v.SetDefault("client-id", "")
	v.SetDefault("client-secret", "")

	dir, err := resolveConfigDir(configDirOverride, v)
	if err != nil {
		return nil, err
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config.yaml: %w", err)
		}
	}

	return &Config{
		ConfigDir:    dir,
		BaseURL:      v.GetString("base-url"),
		StoreAddr:    v.GetString("store-addr"),
		ClientID:     v.GetString("client-id"),
		ClientSecret: v.GetString("client-secret"),
		v:            v,
	}, nil
}

// resolveConfigDir applies the config-directory override (flag/env, via
// configDirOverride) or falls back to os.UserConfigDir()/tracecli.
func resolveConfigDir(override string, v *viper.Viper) (string, error) {
	if override != "" {
		return ensureDir(override)
	}
	if env := v.GetString("config-dir"); env != "" {
		return ensureDir(env)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(base, "tracecli"))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return dir, nil
}

// ControlPlaneURL returns the effective control-plane root: the override
// if set, otherwise the default.
func (c *Config) ControlPlaneURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultControlPlaneURL
}

// StorePath is the embedded store's on-disk location within ConfigDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.ConfigDir, "tracecli.db")
}

// Get reads a yaml-only key's string value (empty string if unset).
func (c *Config) Get(key string) string {
	return c.v.GetString(key)
}

// Set writes a yaml-only key's value into config.yaml, creating the file
// if absent. Callers must route non-yaml-only keys to the store's
// defaults table instead (see internal/config.IsYamlOnlyKey).
func (c *Config) Set(key, value string) error {
	c.v.Set(key, value)
	path := filepath.Join(c.ConfigDir, "config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return err
		}
	}
	return c.v.WriteConfigAs(path)
}
