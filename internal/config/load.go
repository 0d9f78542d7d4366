package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over file values. Returns a populated Config struct or an
// error if loading or validation fails.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file path, used by tests to
// avoid depending on the working directory.
func LoadWithFile(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything can come from
		// defaults and the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Configure environment variables with the TASKRELAY_ prefix,
	// e.g. TASKRELAY_DATABASE_URL, TASKRELAY_SERVER_PORT.
	v.SetEnvPrefix("TASKRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind critical environment variables so they are visible
	// to Unmarshal even when no config file sets the corresponding key.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"database.url", "TASKRELAY_DATABASE_URL"},
		{"server.port", "TASKRELAY_SERVER_PORT"},
		{"server.log_level", "TASKRELAY_SERVER_LOG_LEVEL"},
		{"auth.shared_secret", "TASKRELAY_AUTH_SHARED_SECRET"},
	}

	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies the broker's default timing policy. Every value can
// be overridden by file or environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("broker.sweep_interval_seconds", 30)
	v.SetDefault("broker.pending_timeout_seconds", 300)
	v.SetDefault("broker.processing_timeout_seconds", 600)
	v.SetDefault("broker.heartbeat_timeout_seconds", 60)
	v.SetDefault("broker.lock_staleness_minutes", 15)
	v.SetDefault("broker.backoff_schedule_seconds", []int{30, 60, 120})
	v.SetDefault("broker.default_task_type", "write")
	v.SetDefault("broker.event_buffer_size", 64)
}
