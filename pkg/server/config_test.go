package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 20, cfg.MaxLobbies)
	assert.Equal(t, 6, cfg.DefaultMaxPlayers)
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 20*time.Second, cfg.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.PongTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.StaleAfter)
}

func TestToServerConfigMapsSections(t *testing.T) {
	cfg := DefaultTOMLConfig()
	cfg.Server.Port = 9191
	cfg.Lobbies.MaxLobbies = 3
	cfg.Lobbies.StaleAfterSeconds = 30
	cfg.Transport.HandshakeTimeoutSeconds = 2

	serverCfg := cfg.ToServerConfig()
	assert.Equal(t, 9191, serverCfg.Port)
	assert.Equal(t, 3, serverCfg.MaxLobbies)
	assert.Equal(t, 30*time.Second, serverCfg.StaleAfter)
	assert.Equal(t, 2*time.Second, serverCfg.HandshakeTimeout)
}

func TestToServerConfigFallsBackToDefaults(t *testing.T) {
	var cfg TOMLConfig
	assert.Equal(t, DefaultConfig(), cfg.ToServerConfig())
}

func TestDefaultTOMLConfigRoundTripsToDefaults(t *testing.T) {
	cfg := DefaultTOMLConfig()
	assert.Equal(t, DefaultConfig(), cfg.ToServerConfig())
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobbyd.toml")
	content := `
[server]
host = "127.0.0.1"
port = 7000

[lobbies]
max_lobbies = 5
max_players_limit = 8

[transport]
ping_interval_seconds = 15
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tomlCfg, err := LoadConfig(path)
	require.NoError(t, err)
	cfg := tomlCfg.ToServerConfig()

	assert.Equal(t, "127.0.0.1:7000", cfg.Addr())
	assert.Equal(t, 5, cfg.MaxLobbies)
	assert.Equal(t, 8, cfg.MaxPlayersLimit)
	assert.Equal(t, 15*time.Second, cfg.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.PongTimeout)
}

func TestLoadConfigWritesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lobbyd.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTOMLConfig(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config written")

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, map[string]string{
		"LOBBYD_PORT":           "9000",
		"LOBBYD_MAX_LOBBIES":    "2",
		"LOBBYD_PING_INTERVAL":  "3s",
		"LOBBYD_SERVER_VERSION": "2.0.0",
		"PORT":                  "1",
	})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 2, cfg.MaxLobbies)
	assert.Equal(t, 3*time.Second, cfg.PingInterval)
	assert.Equal(t, "2.0.0", cfg.ServerVersion)
	assert.Equal(t, "0.0.0.0", cfg.Host, "unset variables keep their value")
}

func TestApplyEnvBadValue(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, map[string]string{"LOBBYD_PORT": "eighty"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }},
		{"no lobbies", func(c *ServerConfig) { c.MaxLobbies = 0 }},
		{"default above limit", func(c *ServerConfig) { c.DefaultMaxPlayers = c.MaxPlayersLimit + 1 }},
		{"zero handshake", func(c *ServerConfig) { c.HandshakeTimeout = 0 }},
		{"zero sweep", func(c *ServerConfig) { c.SweepInterval = 0 }},
		{"zero queue", func(c *ServerConfig) { c.OutboundQueue = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestClampPlayers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPlayersLimit = 8

	assert.Equal(t, cfg.DefaultMaxPlayers, cfg.ClampPlayers(0))
	assert.Equal(t, cfg.DefaultMaxPlayers, cfg.ClampPlayers(-3))
	assert.Equal(t, 2, cfg.ClampPlayers(2))
	assert.Equal(t, 8, cfg.ClampPlayers(50))
}
