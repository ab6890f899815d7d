// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the pgx pool connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the headless browser process.
// Concurrency bounds the number of simultaneous purchase runs; each run
// owns exactly one exclusive session.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Concurrency     int      `mapstructure:"concurrency" yaml:"concurrency"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig tunes navigation behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// EngineConfig externalizes the retry counts and settle delays that were
// previously buried as magic constants in workflow code.
type EngineConfig struct {
	FillMaxAttempts  int           `mapstructure:"fill_max_attempts" yaml:"fill_max_attempts"`
	FillRetryDelay   time.Duration `mapstructure:"fill_retry_delay" yaml:"fill_retry_delay"`
	SettleDelay      time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ShutdownSettle   time.Duration `mapstructure:"shutdown_settle" yaml:"shutdown_settle"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	StepPollInterval time.Duration `mapstructure:"step_poll_interval" yaml:"step_poll_interval"`
}

// NewDefaultConfig creates a configuration populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration sections.
// The engine delays mirror the constants the workflow historically used.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autocart")
	v.SetDefault("logger.log_file", "autocart.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.concurrency", 2)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- Engine --
	v.SetDefault("engine.fill_max_attempts", 5)
	v.SetDefault("engine.fill_retry_delay", "3s")
	v.SetDefault("engine.settle_delay", "3s")
	v.SetDefault("engine.shutdown_settle", "20s")
	v.SetDefault("engine.shutdown_grace", "20s")
	v.SetDefault("engine.step_poll_interval", "250ms")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Engine.FillMaxAttempts <= 0 {
		return fmt.Errorf("engine.fill_max_attempts must be a positive integer")
	}
	if c.Engine.FillRetryDelay < 0 || c.Engine.SettleDelay < 0 ||
		c.Engine.ShutdownSettle < 0 || c.Engine.ShutdownGrace < 0 {
		return fmt.Errorf("engine delays must not be negative")
	}
	if c.Engine.StepPollInterval <= 0 {
		return fmt.Errorf("engine.step_poll_interval must be a positive duration")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	return nil
}
