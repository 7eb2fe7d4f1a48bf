package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SWAP_LISTEN_ADDR.
const EnvPrefix = "SWAP"

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Clock sources.
const (
	ClockSystem = "system"
	ClockManual = "manual"
)

// Config is the swapd configuration.
type Config struct {
	ListenAddr    string
	MetricsAddr   string
	Storage       string
	PostgresDSN   string
	ClickhouseDSN string
	MinLockMargin time.Duration
	Clock         string
	GenesisTime   int64
	LogLevel      string
}

// ClientConfig is the swapctl configuration.
type ClientConfig struct {
	Endpoint     string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, "swapd")
	if err != nil {
		return Config{}, err
	}

	v.SetDefault("listen-addr", ":8899")
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("storage", StorageMemory)
	v.SetDefault("min-lock-margin", 60*time.Second)
	v.SetDefault("clock", ClockSystem)
	v.SetDefault("log-level", "info")

	cfg := Config{
		ListenAddr:    v.GetString("listen-addr"),
		MetricsAddr:   v.GetString("metrics-addr"),
		Storage:       strings.ToLower(v.GetString("storage")),
		PostgresDSN:   v.GetString("postgres-dsn"),
		ClickhouseDSN: v.GetString("clickhouse-dsn"),
		MinLockMargin: v.GetDuration("min-lock-margin"),
		Clock:         strings.ToLower(v.GetString("clock")),
		GenesisTime:   v.GetInt64("genesis-time"),
		LogLevel:      v.GetString("log-level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen-addr is required")
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres-dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage %q (memory, postgres)", c.Storage)
	}
	switch c.Clock {
	case ClockSystem, ClockManual:
	default:
		return fmt.Errorf("unknown clock %q (system, manual)", c.Clock)
	}
	if c.MinLockMargin < 0 {
		return errors.New("min-lock-margin must not be negative")
	}
	return nil
}

// LoadClient merges config file, environment variables, and flags into ClientConfig.
func LoadClient(cfgFile string, flags *pflag.FlagSet) (ClientConfig, error) {
	v, err := newViper(cfgFile, flags, "swapctl")
	if err != nil {
		return ClientConfig{}, err
	}

	v.SetDefault("endpoint", "http://localhost:8899")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "warn")

	cfg := ClientConfig{
		Endpoint:     v.GetString("endpoint"),
		Timeout:      v.GetDuration("timeout"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.Endpoint == "" {
		return ClientConfig{}, errors.New("endpoint is required")
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, name string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}

	v.SetConfigName(name)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
