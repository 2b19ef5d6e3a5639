// Package config provides configuration management for the wadplayctl CLI
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// EnvConfigPath overrides the config file location
const EnvConfigPath = "WADPLAYCTL_CONFIG"

// Config holds the CLI configuration
type Config struct {
	// CurrentContext is the name of the active context
	CurrentContext string `mapstructure:"current-context"`
	// Contexts holds the known runtime endpoints
	Contexts map[string]*Context `mapstructure:"contexts"`

	v *viper.Viper
}

// Context is one wadplayd endpoint
type Context struct {
	// Name is the context identifier
	Name string `mapstructure:"name"`
	// Server is the wadplayd host API URL
	Server string `mapstructure:"server"`
	// InsecureSkipVerify disables TLS verification
	InsecureSkipVerify bool `mapstructure:"insecure-skip-verify"`
}

// DefaultPath returns the config file path, honouring WADPLAYCTL_CONFIG
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".wadplayctl", "config.yaml")
	}
	return filepath.Join(home, ".wadplayctl", "config.yaml")
}

// Load reads the configuration at path. A missing file yields an empty
// configuration that Save will create.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("current-context", "")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	return cfg, nil
}

// Save writes the configuration back to the file it was loaded from
func (c *Config) Save() error {
	if c.v == nil {
		return errors.New("config was not loaded from a file")
	}

	contexts := make(map[string]interface{}, len(c.Contexts))
	for name, ctx := range c.Contexts {
		contexts[name] = map[string]interface{}{
			"name":                 ctx.Name,
			"server":               ctx.Server,
			"insecure-skip-verify": ctx.InsecureSkipVerify,
		}
	}
	c.v.Set("current-context", c.CurrentContext)
	c.v.Set("contexts", contexts)

	if err := os.MkdirAll(filepath.Dir(c.v.ConfigFileUsed()), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := c.v.WriteConfigAs(c.v.ConfigFileUsed()); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

// GetCurrentContext returns the active context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	ctx, ok := c.Contexts[c.CurrentContext]
	if !ok {
		return nil, fmt.Errorf("current context %q not found", c.CurrentContext)
	}
	return ctx, nil
}

// AddContext adds or replaces a context. The first context becomes current.
func (c *Config) AddContext(name string, ctx *Context) {
	if c.Contexts == nil {
		c.Contexts = make(map[string]*Context)
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
}

// SetCurrentContext sets the active context
func (c *Config) SetCurrentContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return nil
}

// RemoveContext removes a context, clearing the current one if needed
func (c *Config) RemoveContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return nil
}
