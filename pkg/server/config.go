package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/aeolun/lobbyd/pkg/lobby"
	"github.com/aeolun/lobbyd/pkg/protocol"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "LOBBYD_"

var ErrInvalidConfig = errors.New("invalid config")

// ServerConfig holds runtime configuration for the lobby server
type ServerConfig struct {
	Host              string        `env:"HOST"`
	Port              int           `env:"PORT"`
	MaxLobbies        int           `env:"MAX_LOBBIES"`
	DefaultMaxPlayers int           `env:"DEFAULT_MAX_PLAYERS"`
	MaxPlayersLimit   int           `env:"MAX_PLAYERS_LIMIT"`
	HandshakeTimeout  time.Duration `env:"HANDSHAKE_TIMEOUT"`
	PingInterval      time.Duration `env:"PING_INTERVAL"`
	PongTimeout       time.Duration `env:"PONG_TIMEOUT"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL"`
	StaleAfter        time.Duration `env:"STALE_AFTER"`
	OutboundQueue     int           `env:"OUTBOUND_QUEUE"`
	ServerVersion     string        `env:"SERVER_VERSION"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Host:              "0.0.0.0",
		Port:              8080,
		MaxLobbies:        20,
		DefaultMaxPlayers: lobby.DefaultMaxPlayers,
		MaxPlayersLimit:   16,
		HandshakeTimeout:  5 * time.Second,
		PingInterval:      20 * time.Second,
		PongTimeout:       10 * time.Second,
		SweepInterval:     5 * time.Minute,
		StaleAfter:        10 * time.Minute,
		OutboundQueue:     256,
		ServerVersion:     protocol.ProtocolVersion,
	}
}

// Addr returns the host:port listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate rejects configurations the server cannot run with
func (c ServerConfig) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.MaxLobbies < 1:
		return fmt.Errorf("%w: max_lobbies must be at least 1", ErrInvalidConfig)
	case c.MaxPlayersLimit < 1:
		return fmt.Errorf("%w: max_players_limit must be at least 1", ErrInvalidConfig)
	case c.DefaultMaxPlayers < 1 || c.DefaultMaxPlayers > c.MaxPlayersLimit:
		return fmt.Errorf("%w: default_max_players %d not within 1..%d", ErrInvalidConfig, c.DefaultMaxPlayers, c.MaxPlayersLimit)
	case c.HandshakeTimeout <= 0 || c.PingInterval <= 0 || c.PongTimeout <= 0:
		return fmt.Errorf("%w: transport timeouts must be positive", ErrInvalidConfig)
	case c.SweepInterval <= 0 || c.StaleAfter <= 0:
		return fmt.Errorf("%w: sweep_interval and stale_after must be positive", ErrInvalidConfig)
	case c.OutboundQueue < 1:
		return fmt.Errorf("%w: outbound_queue must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ClampPlayers maps a requested lobby size onto the configured bounds
func (c ServerConfig) ClampPlayers(requested int) int {
	if requested <= 0 {
		return c.DefaultMaxPlayers
	}
	if requested > c.MaxPlayersLimit {
		return c.MaxPlayersLimit
	}
	return requested
}

// ApplyEnv overrides fields from LOBBYD_* variables. A nil environ reads the
// process environment.
func ApplyEnv(cfg *ServerConfig, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server    ServerSection    `toml:"server"`
	Lobbies   LobbiesSection   `toml:"lobbies"`
	Transport TransportSection `toml:"transport"`
}

type ServerSection struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Version string `toml:"version"`
}

type LobbiesSection struct {
	MaxLobbies           int `toml:"max_lobbies"`
	DefaultMaxPlayers    int `toml:"default_max_players"`
	MaxPlayersLimit      int `toml:"max_players_limit"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	StaleAfterSeconds    int `toml:"stale_after_seconds"`
}

type TransportSection struct {
	HandshakeTimeoutSeconds int `toml:"handshake_timeout_seconds"`
	PingIntervalSeconds     int `toml:"ping_interval_seconds"`
	PongTimeoutSeconds      int `toml:"pong_timeout_seconds"`
	OutboundQueue           int `toml:"outbound_queue"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	d := DefaultConfig()
	return TOMLConfig{
		Server: ServerSection{
			Host:    d.Host,
			Port:    d.Port,
			Version: d.ServerVersion,
		},
		Lobbies: LobbiesSection{
			MaxLobbies:           d.MaxLobbies,
			DefaultMaxPlayers:    d.DefaultMaxPlayers,
			MaxPlayersLimit:      d.MaxPlayersLimit,
			SweepIntervalSeconds: int(d.SweepInterval / time.Second),
			StaleAfterSeconds:    int(d.StaleAfter / time.Second),
		},
		Transport: TransportSection{
			HandshakeTimeoutSeconds: int(d.HandshakeTimeout / time.Second),
			PingIntervalSeconds:     int(d.PingInterval / time.Second),
			PongTimeoutSeconds:      int(d.PongTimeout / time.Second),
			OutboundQueue:           d.OutboundQueue,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// unwritable location still runs on defaults
		_ = writeDefaultConfig(path, config)
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# lobbyd server configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ToServerConfig converts TOMLConfig to ServerConfig
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if strings.TrimSpace(c.Server.Host) != "" {
		cfg.Host = c.Server.Host
	}
	if c.Server.Port != 0 {
		cfg.Port = c.Server.Port
	}
	if strings.TrimSpace(c.Server.Version) != "" {
		cfg.ServerVersion = c.Server.Version
	}

	if c.Lobbies.MaxLobbies != 0 {
		cfg.MaxLobbies = c.Lobbies.MaxLobbies
	}
	if c.Lobbies.DefaultMaxPlayers != 0 {
		cfg.DefaultMaxPlayers = c.Lobbies.DefaultMaxPlayers
	}
	if c.Lobbies.MaxPlayersLimit != 0 {
		cfg.MaxPlayersLimit = c.Lobbies.MaxPlayersLimit
	}
	if c.Lobbies.SweepIntervalSeconds != 0 {
		cfg.SweepInterval = seconds(c.Lobbies.SweepIntervalSeconds)
	}
	if c.Lobbies.StaleAfterSeconds != 0 {
		cfg.StaleAfter = seconds(c.Lobbies.StaleAfterSeconds)
	}

	if c.Transport.HandshakeTimeoutSeconds != 0 {
		cfg.HandshakeTimeout = seconds(c.Transport.HandshakeTimeoutSeconds)
	}
	if c.Transport.PingIntervalSeconds != 0 {
		cfg.PingInterval = seconds(c.Transport.PingIntervalSeconds)
	}
	if c.Transport.PongTimeoutSeconds != 0 {
		cfg.PongTimeout = seconds(c.Transport.PongTimeoutSeconds)
	}
	if c.Transport.OutboundQueue != 0 {
		cfg.OutboundQueue = c.Transport.OutboundQueue
	}

	return cfg
}
