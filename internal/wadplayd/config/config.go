// Package config provides configuration management for the wadplayd ad runtime
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the runtime
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Tracking TrackingConfig `yaml:"tracking"`
	Player   PlayerConfig   `yaml:"player"`
	Identity IdentityConfig `yaml:"identity"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the host-facing HTTP boundary settings
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

// ExchangeConfig holds ad-exchange client settings
type ExchangeConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay  time.Duration `yaml:"retryMaxDelay"`
	MinPriceCents  int64         `yaml:"minPriceCents"`
	Format         string        `yaml:"format"`
}

// TrackingConfig holds beacon delivery settings
type TrackingConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// PlayerConfig holds playback and lifecycle settings
type PlayerConfig struct {
	PreloadTimeout       time.Duration `yaml:"preloadTimeout"`
	MaxLifecycle         time.Duration `yaml:"maxLifecycle"`
	DefaultImageDuration time.Duration `yaml:"defaultImageDuration"`
	StallTimeout         time.Duration `yaml:"stallTimeout"`
	ProgressInterval     time.Duration `yaml:"progressInterval"`
	CycleInterval        time.Duration `yaml:"cycleInterval"`
	InitialBurstBytes    int64         `yaml:"initialBurstBytes"`
	MimePreferences      []string      `yaml:"mimePreferences"`
	PlayerName           string        `yaml:"playerName"`
	PlayerVersion        string        `yaml:"playerVersion"`
}

// IdentityConfig holds screen identity settings
type IdentityConfig struct {
	// QueryParam names the launch query parameter that overrides host identifiers
	QueryParam string      `yaml:"queryParam"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds the persisted identity store settings. An empty Addr keeps
// the persisted identity in memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// JournalConfig holds playout journal settings. An empty DSN keeps the
// journal in memory.
type JournalConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MemorySize   int    `yaml:"memorySize"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every tunable set to its standard value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8085,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Exchange: ExchangeConfig{
			Timeout:        5 * time.Second,
			MaxAttempts:    3,
			RetryBaseDelay: 250 * time.Millisecond,
			RetryMaxDelay:  2 * time.Second,
			Format:         "vast",
		},
		Tracking: TrackingConfig{
			Timeout: 2 * time.Second,
		},
		Player: PlayerConfig{
			PreloadTimeout:       20 * time.Second,
			MaxLifecycle:         2 * time.Minute,
			DefaultImageDuration: 15 * time.Second,
			StallTimeout:         10 * time.Second,
			ProgressInterval:     250 * time.Millisecond,
			InitialBurstBytes:    256 * 1024,
			MimePreferences:      []string{"video/mp4", "video/webm", "image/jpeg", "image/png"},
			PlayerName:           "wadplayd",
			PlayerVersion:        "dev",
		},
		Identity: IdentityConfig{
			QueryParam: "screen_id",
			Redis: RedisConfig{
				Key: "wadplay:screen-id",
				TTL: 30 * 24 * time.Hour,
			},
		},
		Journal: JournalConfig{
			MaxOpenConns: 4,
			MemorySize:   256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a configuration from defaults and the environment only
func Load() (*Config, error) {
	cfg := Default()
	cfg.overlayEnv()
	return cfg, cfg.validate()
}

// overlayEnv overlays environment variables on top of file-based config
func (c *Config) overlayEnv() {
	// Server config
	if host := getEnv("WADPLAY_SERVER_HOST", ""); host != "" {
		c.Server.Host = host
	}
	if port := getEnvAsInt("WADPLAY_SERVER_PORT", 0); port != 0 {
		c.Server.Port = port
	}
	if origins := getEnv("WADPLAY_SERVER_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	// Exchange config - the token may come from a generic name too
	if baseURL := getEnv("WADPLAY_EXCHANGE_URL", ""); baseURL != "" {
		c.Exchange.BaseURL = baseURL
	}
	if token := getEnvMulti([]string{"WADPLAY_EXCHANGE_TOKEN", "EXCHANGE_TOKEN"}, ""); token != "" {
		c.Exchange.Token = token
	}
	if timeout := getEnvAsDuration("WADPLAY_EXCHANGE_TIMEOUT", 0); timeout != 0 {
		c.Exchange.Timeout = timeout
	}
	if attempts := getEnvAsInt("WADPLAY_EXCHANGE_MAX_ATTEMPTS", 0); attempts != 0 {
		c.Exchange.MaxAttempts = attempts
	}
	if price := getEnvAsInt64("WADPLAY_EXCHANGE_MIN_PRICE_CENTS", 0); price != 0 {
		c.Exchange.MinPriceCents = price
	}

	// Tracking config
	if timeout := getEnvAsDuration("WADPLAY_TRACKING_TIMEOUT", 0); timeout != 0 {
		c.Tracking.Timeout = timeout
	}

	// Player config
	if timeout := getEnvAsDuration("WADPLAY_PRELOAD_TIMEOUT", 0); timeout != 0 {
		c.Player.PreloadTimeout = timeout
	}
	if lifecycle := getEnvAsDuration("WADPLAY_MAX_LIFECYCLE", 0); lifecycle != 0 {
		c.Player.MaxLifecycle = lifecycle
	}
	if interval := getEnvAsDuration("WADPLAY_CYCLE_INTERVAL", 0); interval != 0 {
		c.Player.CycleInterval = interval
	}

	// Identity config
	if param := getEnv("WADPLAY_IDENTITY_QUERY_PARAM", ""); param != "" {
		c.Identity.QueryParam = param
	}
	if addr := getEnvMulti([]string{"WADPLAY_REDIS_ADDR", "REDIS_ADDR"}, ""); addr != "" {
		c.Identity.Redis.Addr = addr
	}
	if password := getEnvMulti([]string{"WADPLAY_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""); password != "" {
		c.Identity.Redis.Password = password
	}

	// Journal config
	if dsn := getEnvMulti([]string{"WADPLAY_JOURNAL_DSN", "DATABASE_URL"}, ""); dsn != "" {
		c.Journal.DSN = dsn
	}

	// Log config
	if level := getEnv("WADPLAY_LOG_LEVEL", ""); level != "" {
		c.Log.Level = level
	}
	if format := getEnv("WADPLAY_LOG_FORMAT", ""); format != "" {
		c.Log.Format = format
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvMulti(keys []string, fallback string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
