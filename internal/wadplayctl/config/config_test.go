package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.CurrentContext)
	assert.Empty(t, cfg.Contexts)

	_, err = cfg.GetCurrentContext()
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.AddContext("lobby", &Context{Server: "http://10.0.0.5:8085"})
	cfg.AddContext("bench", &Context{Server: "https://bench.example", InsecureSkipVerify: true})
	require.NoError(t, cfg.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lobby", reloaded.CurrentContext)
	require.Len(t, reloaded.Contexts, 2)
	assert.Equal(t, "https://bench.example", reloaded.Contexts["bench"].Server)
	assert.True(t, reloaded.Contexts["bench"].InsecureSkipVerify)

	current, err := reloaded.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8085", current.Server)
}

func TestContexts(t *testing.T) {
	cfg := &Config{}
	cfg.AddContext("a", &Context{Server: "http://a"})
	cfg.AddContext("b", &Context{Server: "http://b"})

	assert.Equal(t, "a", cfg.CurrentContext)
	require.NoError(t, cfg.SetCurrentContext("b"))
	assert.Error(t, cfg.SetCurrentContext("missing"))

	require.NoError(t, cfg.RemoveContext("b"))
	assert.Empty(t, cfg.CurrentContext)
	assert.Error(t, cfg.RemoveContext("b"))
	assert.Error(t, (&Config{}).Save())
}

func TestDefaultPath_Env(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/wadplayctl.yaml")
	assert.Equal(t, "/tmp/wadplayctl.yaml", DefaultPath())
}
