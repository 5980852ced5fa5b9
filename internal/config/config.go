// Package config loads and validates the TOML configuration file: server
// listeners, logging, named filters, and domain-glob rules.
package config

import (
	"os"

	"github.com/pelletier/go-toml"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// Config is the top-level decoded TOML document.
type Config struct {
	Server  Server            `toml:"server"`
	Log     logging.Config    `toml:"log"`
	Filters map[string]Filter `toml:"filters"`
	Rules   []Rule            `toml:"rules"`
}

// Server holds [server].
type Server struct {
	Listen        string `toml:"listen"`
	ListenTCP     string `toml:"listen_tcp"`
	CacheSize     int    `toml:"cache_size"`
	ProxyProtocol bool   `toml:"proxy_protocol"`
}

// Filter holds one [filters.<name>] table.
type Filter struct {
	Kind  string                 `toml:"kind"`
	Props map[string]interface{} `toml:"props"`
}

// Rule holds one [[rules]] entry.
type Rule struct {
	Domain string `toml:"domain"`
	Filter string `toml:"filter"`
}

// Load reads and parses the TOML file at path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.InvalidConfig("config: cannot read ", path).Base(err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, xerrors.InvalidConfig("config: malformed TOML in ", path).Base(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Listen == "" {
		return xerrors.InvalidConfig("config: server.listen is required")
	}
	if c.Server.CacheSize < 0 {
		return xerrors.InvalidConfig("config: server.cache_size must be >= 0")
	}

	for name, f := range c.Filters {
		switch f.Kind {
		case "hosts", "proxyby", "chinadns", "chain":
		default:
			return xerrors.InvalidConfig("config: filters.", name, " has unknown kind ", f.Kind)
		}
	}

	for i, r := range c.Rules {
		if r.Domain == "" {
			return xerrors.InvalidConfig("config: rules[", i, "] missing domain")
		}
		if r.Filter == "" {
			return xerrors.InvalidConfig("config: rules[", i, "] missing filter")
		}
		if _, ok := c.Filters[r.Filter]; !ok {
			return xerrors.InvalidConfig("config: rules[", i, "] references unknown filter ", r.Filter)
		}
	}

	return nil
}

// ListenTCPAddr returns the configured TCP listen address, defaulting to the
// UDP listen address's host:port when unset.
func (s Server) ListenTCPAddr() string {
	if s.ListenTCP != "" {
		return s.ListenTCP
	}
	return s.Listen
}
