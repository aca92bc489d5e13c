package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/baderanaas/hushlan/pkg/crypto"
)

var ErrInvalid = errors.New("invalid config")

const (
	BackendZeroconf = "zeroconf"
	BackendLibp2p   = "libp2p"
	BackendNone     = "none"
)

type Config struct {
	Name        string    `toml:"name"`
	Host        string    `toml:"host"`
	Port        int       `toml:"port"`
	SharedKey   string    `toml:"shared_key"`
	Cipher      string    `toml:"cipher"`
	DownloadDir string    `toml:"download_dir"`
	LogLevel    string    `toml:"log_level"`
	MetricsAddr string    `toml:"metrics_addr"`
	Discovery   Discovery `toml:"discovery"`
}

type Discovery struct {
	Backend        string   `toml:"backend"`
	Service        string   `toml:"service"`
	Domain         string   `toml:"domain"`
	BrowseInterval Duration `toml:"browse_interval"`
	PruneLost      bool     `toml:"prune_lost"`
}

// Duration decodes TOML strings such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every optional field filled in.
func Default() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     6000,
		Cipher:   string(crypto.AES256GCM),
		LogLevel: "info",
		Discovery: Discovery{
			Backend:        BackendZeroconf,
			Service:        "_lanchat._tcp",
			Domain:         "local.",
			BrowseInterval: Duration{10 * time.Second},
		},
	}
}

// Load reads a TOML file on top of Default. An empty path yields the
// defaults; a named file that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if strings.TrimSpace(c.Host) == "" {
		c.Host = def.Host
	}
	if c.Cipher == "" {
		c.Cipher = def.Cipher
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Discovery.Backend == "" {
		c.Discovery.Backend = def.Discovery.Backend
	}
	if c.Discovery.Service == "" {
		c.Discovery.Service = def.Discovery.Service
	}
	if c.Discovery.Domain == "" {
		c.Discovery.Domain = def.Discovery.Domain
	}
	if c.Discovery.BrowseInterval.Duration <= 0 {
		c.Discovery.BrowseInterval = def.Discovery.BrowseInterval
	}
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.SharedKey != "" {
		if _, err := crypto.ParseKey(c.SharedKey); err != nil {
			return fmt.Errorf("%w: shared_key: %v", ErrInvalid, err)
		}
	}
	switch crypto.Suite(c.Cipher) {
	case crypto.AES256GCM, crypto.ChaCha20Poly1305:
	default:
		return fmt.Errorf("%w: unknown cipher %q", ErrInvalid, c.Cipher)
	}
	switch c.Discovery.Backend {
	case BackendZeroconf, BackendLibp2p, BackendNone:
	default:
		return fmt.Errorf("%w: unknown discovery backend %q", ErrInvalid, c.Discovery.Backend)
	}
	return nil
}

// Key returns the configured shared key, or a fresh random one when none is set.
func (c Config) Key() (crypto.Key, error) {
	if c.SharedKey == "" {
		return crypto.NewKey()
	}
	return crypto.ParseKey(c.SharedKey)
}
