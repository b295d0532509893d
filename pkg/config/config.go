package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/user/proxyservice/internal/repository"
)

// ErrMissingCredentials is returned by Validate when the inventory service cannot be reached at all.
// It is the same error the inventory client reports.
var ErrMissingCredentials = repository.ErrMissingCredentials

// ErrInvalidRetry is returned by Validate when retry settings are not usable.
var ErrInvalidRetry = errors.New("invalid retry settings: max_retry_no and retry_delay must be positive")

// Config holds the process-wide configuration.
type Config struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	Retry          bool          `mapstructure:"retry"`
	MaxRetryNo     int           `mapstructure:"max_retry_no"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	ServerPort string `mapstructure:"server_port"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`

	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	BlockCounterTTL time.Duration `mapstructure:"block_counter_ttl"`

	PostgresURL string `mapstructure:"postgres_url"`

	Units []UnitConfig `mapstructure:"units"`
}

// UnitConfig describes a crawling unit registered by the serve command.
type UnitConfig struct {
	Name            string `mapstructure:"name"`
	TargetID        string `mapstructure:"target_id"`
	Algorithm       string `mapstructure:"algorithm"`
	Length          int    `mapstructure:"length"`
	Profile         *int   `mapstructure:"profile"`
	Locations       string `mapstructure:"locations"`
	Types           string `mapstructure:"types"`
	Providers       string `mapstructure:"providers"`
	IgnoreIPs       string `mapstructure:"ignore_ips"`
	BlockedSelector string `mapstructure:"blocked_selector"`
}

// Load reads configuration from an optional file and PROXY_SERVICE_* environment variables.
// Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROXY_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// PSWD is the historical name of the password setting
	if err := v.BindEnv("password", "PROXY_SERVICE_PASSWORD", "PROXY_SERVICE_PSWD"); err != nil {
		return nil, err
	}

	v.SetDefault("host", "")
	v.SetDefault("user", "")
	v.SetDefault("retry", true)
	v.SetDefault("max_retry_no", 10)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("server_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("block_counter_ttl", 24*time.Hour)
	v.SetDefault("postgres_url", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the inventory client cannot work without.
func (c *Config) Validate() error {
	if c.Host == "" || c.User == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	if c.MaxRetryNo <= 0 || c.RetryDelay <= 0 {
		return ErrInvalidRetry
	}
	for i, u := range c.Units {
		if u.Name == "" || u.TargetID == "" {
			return fmt.Errorf("units[%d]: name and target_id are required", i)
		}
	}
	return nil
}
