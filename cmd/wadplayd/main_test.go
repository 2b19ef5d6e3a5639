package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrale/wrale-adplay/internal/wadplayd/journal"
	"github.com/wrale/wrale-adplay/internal/wadplayd/lifecycle"
)

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WADPLAY_TEST_ENV_FILE=loaded\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("WADPLAY_TEST_ENV_FILE") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("WADPLAY_TEST_ENV_FILE"))
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv("WADPLAY_EXCHANGE_URL", "https://exchange.example")
	t.Setenv("WADPLAY_EXCHANGE_TOKEN", "secret")
	t.Setenv("WADPLAY_LOG_LEVEL", "warn")

	v := viper.New()
	v.Set("log-level", "debug")
	v.Set("port", 9191)

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "https://exchange.example", cfg.Exchange.BaseURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("WADPLAY_EXCHANGE_URL", "")
	t.Setenv("WADPLAY_EXCHANGE_TOKEN", "")
	t.Setenv("EXCHANGE_TOKEN", "")

	_, err := loadConfig(viper.New())
	assert.Error(t, err)
}

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) RunCycle(ctx context.Context) lifecycle.Outcome {
	r.runs.Add(1)
	return lifecycle.Outcome{Result: journal.ResultSkipped}
}

func TestAutoCycle_RunsUntilCancelled(t *testing.T) {
	r := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		autoCycle(ctx, r, time.Millisecond, zerolog.Nop())
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
