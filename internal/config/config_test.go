package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/config"
)

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "zerodns.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTOML(t, `
[server]
listen = "127.0.0.1:53"
cache_size = 1000

[filters.direct]
kind = "hosts"
props = { hosts = { "example.com" = "1.2.3.4" } }

[[rules]]
domain = "*"
filter = "direct"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:53", cfg.Server.Listen)
	require.Equal(t, 1000, cfg.Server.CacheSize)
	require.Len(t, cfg.Filters, 1)
	require.Equal(t, "hosts", cfg.Filters["direct"].Kind)
	require.Len(t, cfg.Rules, 1)
}

func TestLoad_MissingListen_Errors(t *testing.T) {
	path := writeTOML(t, `
[server]
cache_size = 10
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_RuleReferencesUnknownFilter_Errors(t *testing.T) {
	path := writeTOML(t, `
[server]
listen = "127.0.0.1:53"

[[rules]]
domain = "*"
filter = "missing"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_UnknownFilterKind_Errors(t *testing.T) {
	path := writeTOML(t, `
[server]
listen = "127.0.0.1:53"

[filters.bad]
kind = "nonsense"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestServer_ListenTCPAddr_DefaultsToListen(t *testing.T) {
	path := writeTOML(t, `
[server]
listen = "127.0.0.1:53"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:53", cfg.Server.ListenTCPAddr())
}
