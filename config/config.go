package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	Timer      TimerConfig      `yaml:"timer"`
	Audio      AudioConfig      `yaml:"audio"`
	Snooze     SnoozeConfig     `yaml:"snooze"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the push notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push alerts.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// TimerConfig controls the wake-up timer facility.
//
// When exact_enabled is false the adapter degrades to best-effort delivery:
// armed instants are rounded up to the coarse granularity, and the capability
// query reports the degraded mode to callers.
type TimerConfig struct {
	// A pointer so a config file omitting the timer section keeps the
	// exact default instead of silently degrading.
	ExactEnabled          *bool `yaml:"exact_enabled"`
	CoarseGranularitySecs int   `yaml:"coarse_granularity_secs"`
}

// Exact reports whether exact scheduling is enabled, defaulting to true when
// the setting is absent.
func (c *TimerConfig) Exact() bool {
	return c.ExactEnabled == nil || *c.ExactEnabled
}

// AudioConfig controls the ringing tone playback.
type AudioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SampleRate int    `yaml:"sample_rate"`
	ToneDir    string `yaml:"tone_dir"`
}

// SnoozeConfig seeds the stored snooze-duration setting.
type SnoozeConfig struct {
	DefaultMinutes int `yaml:"default_minutes"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied, for callers
// that run without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "sqlite:alarms.db"
	}
	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Timer.ExactEnabled == nil {
		exact := true
		cfg.Timer.ExactEnabled = &exact
	}
	if cfg.Timer.CoarseGranularitySecs <= 0 {
		cfg.Timer.CoarseGranularitySecs = 60
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 44100
	}
	if cfg.Snooze.DefaultMinutes <= 0 {
		cfg.Snooze.DefaultMinutes = 5
	}
	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
