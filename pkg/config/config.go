// Package config loads the nanopubsub TOML configuration file
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aeolun/nanopubsub/pkg/protocol"
)

// DefaultPath is where the CLI looks for its config file
const DefaultPath = "~/.nanopubsub/config.toml"

// Config represents the structure of the config file
type Config struct {
	Network NetworkSection `toml:"network"`
	Client  ClientSection  `toml:"client"`
	Listen  ListenSection  `toml:"listen"`
	Journal JournalSection `toml:"journal"`
	Metrics MetricsSection `toml:"metrics"`
}

type NetworkSection struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Bind string `toml:"bind"`
}

type ClientSection struct {
	ClientID string `toml:"client_id"`
}

type ListenSection struct {
	ShowAll    bool `toml:"show_all"`
	Timestamps bool `toml:"timestamps"`
	Strict     bool `toml:"strict"`
}

type JournalSection struct {
	Path string `toml:"path"`
}

type MetricsSection struct {
	Addr string `toml:"addr"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Network: NetworkSection{
			Host: "localhost",
			Port: protocol.DefaultPort,
			Bind: "0.0.0.0",
		},
		Listen: ListenSection{
			Timestamps: true,
		},
	}
}

// Load reads configuration from a TOML file, writes a documented default
// file if none exists, and applies environment variable overrides.
func Load(path string) (Config, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// An unwritable location is not fatal; run on defaults.
		_ = writeDefault(path)
	} else {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg = applyEnvOverrides(cfg)
	if cfg.Network.Port == 0 {
		cfg.Network.Port = protocol.DefaultPort
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up silently
func (c Config) Validate() error {
	if c.Network.Port < 0 || c.Network.Port > 65535 {
		return fmt.Errorf("network.port %d out of range", c.Network.Port)
	}
	if strings.ContainsRune(c.Client.ClientID, protocol.Delimiter) {
		return fmt.Errorf("client.client_id: %w", protocol.ErrDelimiterInField)
	}
	return nil
}

// JournalPath returns the journal path with ~ expanded, or "" if disabled
func (c Config) JournalPath() (string, error) {
	if c.Journal.Path == "" {
		return "", nil
	}
	return ExpandHome(c.Journal.Path)
}

// ExpandHome replaces a leading ~/ with the user's home directory
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// applyEnvOverrides applies NANOPUBSUB_SECTION_KEY environment variables.
// Values that fail to parse are ignored.
func applyEnvOverrides(cfg Config) Config {
	if val := os.Getenv("NANOPUBSUB_NETWORK_HOST"); val != "" {
		cfg.Network.Host = val
	}
	if val := os.Getenv("NANOPUBSUB_NETWORK_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Network.Port = port
		}
	}
	if val := os.Getenv("NANOPUBSUB_NETWORK_BIND"); val != "" {
		cfg.Network.Bind = val
	}

	if val := os.Getenv("NANOPUBSUB_CLIENT_CLIENT_ID"); val != "" {
		cfg.Client.ClientID = val
	}

	if val := os.Getenv("NANOPUBSUB_LISTEN_SHOW_ALL"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Listen.ShowAll = b
		}
	}
	if val := os.Getenv("NANOPUBSUB_LISTEN_TIMESTAMPS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Listen.Timestamps = b
		}
	}
	if val := os.Getenv("NANOPUBSUB_LISTEN_STRICT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Listen.Strict = b
		}
	}

	if val := os.Getenv("NANOPUBSUB_JOURNAL_PATH"); val != "" {
		cfg.Journal.Path = val
	}
	if val := os.Getenv("NANOPUBSUB_METRICS_ADDR"); val != "" {
		cfg.Metrics.Addr = val
	}

	return cfg
}

const defaultFile = `# nanopubsub configuration
# This file was auto-generated with default values.
# Command line flags take precedence over these settings.
#
# Environment variables can override these settings:
# NANOPUBSUB_SECTION_KEY (e.g., NANOPUBSUB_NETWORK_PORT=11012)

[network]
# Destination host for msg, sub and unsub (IPv4 only)
host = "localhost"

# Destination port, and the port listen binds to (0 means 11011)
port = 11011

# Address listen binds to
bind = "0.0.0.0"

[client]
# Default client id; must not contain '#'
# client_id = "client1"

[listen]
# Print subscribe and unsubscribe frames as well as standard messages
show_all = false

# Prefix each printed frame with the local time
timestamps = true

# Reject datagrams with bytes after the closing delimiter
strict = false

[journal]
# SQLite file recording every received message (empty disables)
# path = "~/.nanopubsub/journal.db"

[metrics]
# Prometheus listen address, e.g. ":9111" (empty disables)
# addr = ":9111"
`

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
