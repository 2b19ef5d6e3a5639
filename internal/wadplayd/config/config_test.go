package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
exchange:
  baseURL: https://exchange.example.com
  token: file-token
  minPriceCents: 150
player:
  preloadTimeout: 12s
  mimePreferences:
    - video/webm
identity:
  queryParam: screen
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "wadplayd.yaml", sampleConfig)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://exchange.example.com", cfg.Exchange.BaseURL)
	assert.Equal(t, int64(150), cfg.Exchange.MinPriceCents)
	assert.Equal(t, 12*time.Second, cfg.Player.PreloadTimeout)
	assert.Equal(t, []string{"video/webm"}, cfg.Player.MimePreferences)
	assert.Equal(t, "screen", cfg.Identity.QueryParam)

	// Defaults survive for keys the file leaves out
	assert.Equal(t, 15*time.Second, cfg.Player.DefaultImageDuration)
	assert.Equal(t, 3, cfg.Exchange.MaxAttempts)
}

func TestLoadFile_EnvOverlay(t *testing.T) {
	path := writeConfig(t, "wadplayd.yml", sampleConfig)
	t.Setenv("WADPLAY_EXCHANGE_TOKEN", "env-token")
	t.Setenv("WADPLAY_SERVER_PORT", "9090")
	t.Setenv("WADPLAY_SERVER_ALLOWED_ORIGINS", "http://player.local, http://kiosk.local")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Exchange.Token)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://player.local", "http://kiosk.local"}, cfg.Server.AllowedOrigins)
}

func TestLoadFile_RejectsExtension(t *testing.T) {
	path := writeConfig(t, "wadplayd.json", "{}")

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "missing exchange url",
			mutate: func(c *Config) { c.Exchange.BaseURL = "" },
		},
		{
			name:   "bad exchange url",
			mutate: func(c *Config) { c.Exchange.BaseURL = "not a url" },
		},
		{
			name:   "missing token",
			mutate: func(c *Config) { c.Exchange.Token = "" },
		},
		{
			name:   "unknown format",
			mutate: func(c *Config) { c.Exchange.Format = "openrtb" },
		},
		{
			name:   "lifecycle shorter than preload",
			mutate: func(c *Config) { c.Player.MaxLifecycle = time.Second },
		},
		{
			name:   "stall shorter than progress tick",
			mutate: func(c *Config) { c.Player.StallTimeout = c.Player.ProgressInterval },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Exchange.BaseURL = "https://exchange.example.com"
			cfg.Exchange.Token = "token"
			require.NoError(t, cfg.validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
