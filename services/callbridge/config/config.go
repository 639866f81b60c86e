// Package config loads the daemon configuration from the environment, an
// optional .env file and command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sebas/callbridge/services/callbridge/settings"
)

// Settings backends
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds the callbridge daemon configuration
type Config struct {
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50070"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8070"`
	LogLevel string `env:"LOGLEVEL" envDefault:"info"`
	NodeID   string `env:"NODE_ID"`

	// Component is the connection-providing component the account binds to
	Component           string        `env:"COMPONENT" envDefault:"callbridge.ConnectionService"`
	ReachabilityTimeout time.Duration `env:"REACHABILITY_TIMEOUT" envDefault:"2s"`
	WakeLease           time.Duration `env:"WAKE_LEASE" envDefault:"60s"`

	EventBuffer    int     `env:"EVENT_BUFFER" envDefault:"256"`
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	SettingsBackend string `env:"SETTINGS_BACKEND" envDefault:"file"`
	SettingsPath    string `env:"SETTINGS_PATH" envDefault:"callbridge-settings.json"`
	Redis           Redis  `envPrefix:"REDIS_"`

	// SetupFile is a YAML document of setup options applied at start-up
	SetupFile string `env:"SETUP_FILE"`

	Platform Platform `envPrefix:"PLATFORM_"`
}

// Redis configures the redis settings backend
type Redis struct {
	Addr        string        `env:"ADDR"`
	Username    string        `env:"USERNAME"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	Key         string        `env:"KEY"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"2s"`
}

// Platform configures the in-process loopback platform
type Platform struct {
	APILevel     int    `env:"API_LEVEL" envDefault:"33"`
	Manufacturer string `env:"MANUFACTURER" envDefault:"generic"`
	AppName      string `env:"APP_NAME" envDefault:"callbridge"`
	Running      bool   `env:"APP_RUNNING" envDefault:"true"`
	HasActivity  bool   `env:"HAS_ACTIVITY" envDefault:"true"`
	HasSIM       bool   `env:"HAS_SIM" envDefault:"true"`
}

// EnvPrefix is prepended to every variable except LOGLEVEL and ENV_FILE
const EnvPrefix = "CALLBRIDGE_"

// LoadEnv loads the content of ENV_FILE (or .env) into the environment.
// A missing default .env is not an error.
func LoadEnv() error {
	envfile := os.Getenv("ENV_FILE")
	if envfile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(envfile); err != nil {
		return fmt.Errorf("load %s: %w", envfile, err)
	}
	return nil
}

// Load parses the environment and then args. Flags given on the command
// line win over the environment.
func Load(args []string) (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if level := os.Getenv("LOGLEVEL"); level != "" {
		cfg.LogLevel = level
	}

	flags := flag.NewFlagSet("callbridge", flag.ContinueOnError)
	flags.StringVar(&cfg.GRPCAddr, "grpc", cfg.GRPCAddr, "gRPC listen address")
	flags.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status API listen address")
	flags.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.NodeID, "node", cfg.NodeID, "Node id stamped on events (random if empty)")
	flags.DurationVar(&cfg.ReachabilityTimeout, "reachability-timeout", cfg.ReachabilityTimeout, "How long a reachability check waits before waking the app")
	flags.DurationVar(&cfg.WakeLease, "wake-lease", cfg.WakeLease, "Wake lock lease")
	flags.StringVar(&cfg.SettingsBackend, "settings", cfg.SettingsBackend, "Settings backend (file, redis, memory)")
	flags.StringVar(&cfg.SettingsPath, "settings-path", cfg.SettingsPath, "Settings file for the file backend")
	flags.StringVar(&cfg.Redis.Addr, "redis", cfg.Redis.Addr, "Redis address for the redis backend")
	flags.StringVar(&cfg.SetupFile, "setup", cfg.SetupFile, "YAML file of setup options applied at start-up")
	flags.IntVar(&cfg.Platform.APILevel, "api-level", cfg.Platform.APILevel, "API level reported by the loopback platform")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option values that would otherwise fail late.
func (c *Config) Validate() error {
	c.SettingsBackend = strings.ToLower(strings.TrimSpace(c.SettingsBackend))
	switch c.SettingsBackend {
	case BackendFile:
		if c.SettingsPath == "" {
			return errors.New("settings path is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis address is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown settings backend %q", c.SettingsBackend)
	}
	if c.ReachabilityTimeout <= 0 {
		return fmt.Errorf("reachability timeout must be positive, got %s", c.ReachabilityTimeout)
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("event buffer must not be negative, got %d", c.EventBuffer)
	}
	return nil
}

// RedisOptions converts the redis section for the settings store.
func (c *Config) RedisOptions() settings.RedisOptions {
	return settings.RedisOptions{
		Addr:        c.Redis.Addr,
		Username:    c.Redis.Username,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		Key:         c.Redis.Key,
		DialTimeout: c.Redis.DialTimeout,
	}
}

// LoadSetup reads a YAML document of setup options. An empty path yields
// empty options.
func LoadSetup(path string) (settings.Settings, error) {
	if path == "" {
		return settings.Settings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setup file: %w", err)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse setup file %s: %w", path, err)
	}
	if parsed == nil {
		return settings.Settings{}, nil
	}
	return settings.Settings(parsed), nil
}
