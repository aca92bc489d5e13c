package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "lanchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.ErrorIs(t, err, os.ErrNotExist, "a named config file must exist")
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
name = "alice"
port = 6001
cipher = "chacha20-poly1305"

[discovery]
backend = "libp2p"
browse_interval = "3s"
prune_lost = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "alice", cfg.Name)
	require.Equal(t, 6001, cfg.Port)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, "chacha20-poly1305", cfg.Cipher)
	require.Equal(t, BackendLibp2p, cfg.Discovery.Backend)
	require.Equal(t, "_lanchat._tcp", cfg.Discovery.Service)
	require.Equal(t, 3*time.Second, cfg.Discovery.BrowseInterval.Duration)
	require.True(t, cfg.Discovery.PruneLost)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "name = \"alice\"\nnickname = \"al\"\n")
	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Name = "alice"
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *Config){
		"empty name":      func(c *Config) { c.Name = "  " },
		"negative port":   func(c *Config) { c.Port = -1 },
		"huge port":       func(c *Config) { c.Port = 70000 },
		"short key":       func(c *Config) { c.SharedKey = "abcd" },
		"unknown cipher":  func(c *Config) { c.Cipher = "des" },
		"unknown backend": func(c *Config) { c.Discovery.Backend = "bonjour" },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		require.ErrorIs(t, cfg.Validate(), ErrInvalid, name)
	}
}

func TestKey(t *testing.T) {
	cfg := Default()
	k1, err := cfg.Key()
	require.NoError(t, err)
	k2, err := cfg.Key()
	require.NoError(t, err)
	require.NotEqual(t, k1, k2, "no shared key means a fresh key")

	cfg.SharedKey = strings.Repeat("0f", 32)
	k1, err = cfg.Key()
	require.NoError(t, err)
	k2, err = cfg.Key()
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Equal(t, cfg.SharedKey, k1.String())
}
