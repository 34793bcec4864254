package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "0.0.0.0"
  port: 9090
  db_path: "/var/lib/chathub"
logging:
  level: "debug"
  format: "json"
security:
  api_keys:
    backend: ["bk1", "bk2"]
    admin: ["ak1"]
hub:
  lifecycle_broadcast: "all"
limits:
  max_file_size: "8 MiB"
retention:
  enabled: true
  cron: "0 2 * * *"
  period: "720h"
bridge:
  enabled: true
  addr: "redis:6379"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, "/var/lib/chathub", cfg.Server.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"bk1", "bk2"}, cfg.Security.APIKeys.Backend)
	assert.True(t, cfg.LifecycleBroadcastAll())
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, "redis:6379", cfg.Bridge.Addr)

	size, err := cfg.MaxFileBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(8<<20), size)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: a: map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestAddrDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, ":8080", cfg.Addr())

	cfg.Server.Address = ":9999"
	assert.Equal(t, ":9999", cfg.Addr())
}

func TestLifecycleBroadcastDefaultsToParticipants(t *testing.T) {
	var cfg Config
	assert.False(t, cfg.LifecycleBroadcastAll())
	cfg.Hub.LifecycleBroadcast = "participants"
	assert.False(t, cfg.LifecycleBroadcastAll())
}

func TestMaxFileBytesEmptyMeansDefault(t *testing.T) {
	var cfg Config
	size, err := cfg.MaxFileBytes()
	require.NoError(t, err)
	assert.Zero(t, size)

	cfg.Limits.MaxFileSize = "not a size"
	_, err = cfg.MaxFileBytes()
	assert.Error(t, err)
}

func TestLoadEffectiveMissingFileUsesFlagDefaults(t *testing.T) {
	flags := Flags{
		Addr:   ":8080",
		DB:     "./.database",
		Config: filepath.Join(t.TempDir(), "nope.yaml"),
		Set:    map[string]bool{"config": true},
	}
	eff, err := LoadEffective(flags)
	require.NoError(t, err)
	assert.Equal(t, "./.database", eff.DBPath)
	assert.NotNil(t, eff.Config)
}

func TestLoadEffectiveFlagsWinOverFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "10.0.0.1"
  port: 9090
  db_path: "/from/file"
`)
	flags := Flags{
		Addr:   ":7070",
		DB:     "/from/flag",
		Config: path,
		Set:    map[string]bool{"config": true, "addr": true, "db": true},
	}
	eff, err := LoadEffective(flags)
	require.NoError(t, err)
	assert.Equal(t, ":7070", eff.Addr)
	assert.Equal(t, "/from/flag", eff.DBPath)
	assert.Contains(t, eff.Source, "config")
	assert.Contains(t, eff.Source, "flags")
}

func TestLoadEffectiveEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "10.0.0.1"
  port: 9090
`)
	t.Setenv("CHATHUB_SERVER_ADDRESS", ":6060")
	t.Setenv("CHATHUB_API_BACKEND_KEYS", "k1, k2 ,")
	t.Setenv("CHATHUB_ALLOW_UNAUTH", "true")

	flags := Flags{Addr: ":8080", DB: "./.database", Config: path, Set: map[string]bool{"config": true}}
	eff, err := LoadEffective(flags)
	require.NoError(t, err)
	assert.Equal(t, ":6060", eff.Addr)
	assert.Equal(t, []string{"k1", "k2"}, eff.Config.Security.APIKeys.Backend)
	assert.True(t, eff.Config.Security.APIKeys.AllowUnauth)
	assert.Contains(t, eff.Source, "env")
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "/explicit.yaml", ResolveConfigPath("/explicit.yaml", true))

	t.Setenv("CHATHUB_CONFIG", "/from/env.yaml")
	assert.Equal(t, "/from/env.yaml", ResolveConfigPath("./config.yaml", false))

	t.Setenv("CHATHUB_CONFIG", "")
	assert.Equal(t, "./config.yaml", ResolveConfigPath("./config.yaml", false))
}
