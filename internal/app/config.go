package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/scheduler"
)

// EnvPrefix prefixes every environment variable read into the Config, e.g.
// VIEWGRID_WORKERS or VIEWGRID_FEED_URL.
const EnvPrefix = "VIEWGRID"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ViewPath string `mapstructure:"view"`

	Workers         int           `mapstructure:"workers"`
	MaxJobSize      int           `mapstructure:"max_job_size"`
	MaxJobsInFlight int           `mapstructure:"max_jobs_in_flight"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`

	LogFormat       string `mapstructure:"log_format"`
	LogLevel        string `mapstructure:"log_level"`
	HealthcheckPort int    `mapstructure:"healthcheck_port"`
	OTLPEndpoint    string `mapstructure:"otlp_endpoint"`

	Feed FeedConfig `mapstructure:"feed"`
}

// FeedConfig locates the socket.io market-data feed of live mode.
type FeedConfig struct {
	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
}

// SetDefaults installs the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	sc := scheduler.DefaultConfig()
	v.SetDefault("view", "")
	v.SetDefault("workers", 4)
	v.SetDefault("max_job_size", sc.MaxJobSize)
	v.SetDefault("max_jobs_in_flight", sc.MaxJobsInFlight)
	v.SetDefault("job_timeout", sc.JobTimeout)
	v.SetDefault("max_retries", sc.MaxRetries)
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("healthcheck_port", 0)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.namespace", "/")
}

// NewViper returns a viper instance with defaults and environment binding.
// When configFile is set it is read as well; its format follows the file
// extension.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs(err)
		}
	}
	return v, nil
}

// LoadConfig decodes and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs(err)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.ViewPath == "":
		return invalid("a view path is required")
	case c.Workers < 1:
		return invalid("workers must be positive, got %d", c.Workers)
	case c.MaxJobSize < 1:
		return invalid("max_job_size must be positive, got %d", c.MaxJobSize)
	case c.MaxJobsInFlight < 1:
		return invalid("max_jobs_in_flight must be positive, got %d", c.MaxJobsInFlight)
	case c.JobTimeout <= 0:
		return invalid("job_timeout must be positive, got %s", c.JobTimeout)
	case c.MaxRetries < 0:
		return invalid("max_retries must not be negative, got %d", c.MaxRetries)
	case c.HealthcheckPort < 0:
		return invalid("healthcheck_port must not be negative, got %d", c.HealthcheckPort)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format must be 'text' or 'json', got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level must be 'debug', 'info', 'warn' or 'error', got %q", c.LogLevel)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return cerrors.ErrInvalidConfig.GenWithStackByArgs(fmt.Sprintf(format, args...))
}

// SchedulerConfig maps the configuration onto the scheduler knobs.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxJobSize:      c.MaxJobSize,
		MaxJobsInFlight: c.MaxJobsInFlight,
		JobTimeout:      c.JobTimeout,
		MaxRetries:      c.MaxRetries,
	}
}
