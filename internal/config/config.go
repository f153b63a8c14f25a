package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Log levels and formats.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatText = "text"
	FormatJSON = "json"
)

// Config represents the application configuration.
type Config struct {
	Log       LogConfig      `yaml:"log"`
	Run       RunConfig      `yaml:"run"`
	Remote    RemoteConfig   `yaml:"remote"`
	Health    HealthConfig   `yaml:"health"`
	Namespace map[string]any `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: LevelInfo, Format: FormatText},
		Run: RunConfig{ProgressInterval: time.Second},
		Remote: RemoteConfig{
			Namespace: "/",
			Timeout:   10 * time.Second,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Run.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	return c.Health.Validate()
}

// LogConfig holds logging configuration. When File is set, records are also
// written there as JSON.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Validate validates the logging configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In(LevelDebug, LevelInfo, LevelWarn, LevelError)),
		validation.Field(&c.Format, validation.Required, validation.In(FormatText, FormatJSON)),
	)
}

// RunConfig holds graph run configuration.
type RunConfig struct {
	// ProgressInterval is how often a running graph reports progress.
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// Validate validates the run configuration.
func (c *RunConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ProgressInterval, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// RemoteConfig configures the socket.io frame reader.
type RemoteConfig struct {
	Namespace          string        `yaml:"namespace"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Namespace, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// HealthConfig holds the health check server configuration. Port 0 disables
// the server.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// Validate validates the health check configuration.
func (c *HealthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}
