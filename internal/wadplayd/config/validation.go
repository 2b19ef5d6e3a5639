package config

import (
	"fmt"
	"time"

	"github.com/asaskevich/govalidator"
)

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange base URL is required")
	}
	if !govalidator.IsRequestURL(c.Exchange.BaseURL) {
		return fmt.Errorf("invalid exchange base URL: %q", c.Exchange.BaseURL)
	}
	if c.Exchange.Token == "" {
		return fmt.Errorf("exchange token is required")
	}
	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("exchange timeout must be positive")
	}
	if c.Exchange.MaxAttempts < 1 {
		return fmt.Errorf("invalid exchange max attempts: %d", c.Exchange.MaxAttempts)
	}
	if c.Exchange.MinPriceCents < 0 {
		return fmt.Errorf("minimum price cannot be negative")
	}
	if c.Exchange.Format != "vast" && c.Exchange.Format != "json" {
		return fmt.Errorf("unsupported offer format %q", c.Exchange.Format)
	}
	if c.Tracking.Timeout <= 0 || c.Tracking.Timeout >= c.Exchange.Timeout*time.Duration(c.Exchange.MaxAttempts) {
		return fmt.Errorf("tracking timeout must be positive and shorter than the exchange budget")
	}
	if c.Player.PreloadTimeout <= 0 {
		return fmt.Errorf("preload timeout must be positive")
	}
	if c.Player.MaxLifecycle < c.Player.PreloadTimeout {
		return fmt.Errorf("max lifecycle must be at least the preload timeout")
	}
	if c.Player.DefaultImageDuration < time.Second {
		return fmt.Errorf("default image duration must be at least 1s")
	}
	if c.Player.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}
	if c.Player.StallTimeout <= c.Player.ProgressInterval {
		return fmt.Errorf("stall timeout must exceed the progress interval")
	}
	if c.Identity.QueryParam == "" {
		return fmt.Errorf("identity query parameter name is required")
	}
	if c.Journal.DSN == "" && c.Journal.MemorySize < 1 {
		return fmt.Errorf("in-memory journal size must be at least 1")
	}
	return nil
}
