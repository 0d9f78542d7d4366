package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Broker   BrokerConfig   `mapstructure:"broker"   validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL runs the broker on in-memory stores: nothing survives a
// restart, but no database is needed. Intended for local development.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains the boundary-check settings. When SharedSecret is
// empty the check is disabled; anything stronger than a shared secret is
// delegated to whatever sits in front of the broker.
type AuthConfig struct {
	SharedSecret string `mapstructure:"shared_secret"`
}

// BrokerConfig contains the timing and policy knobs for the broker core.
type BrokerConfig struct {
	// SweepIntervalSeconds is the supervisor's sweep period.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" validate:"required,gt=0"`

	// PendingTimeoutSeconds is how long a task may sit pending before the
	// supervisor schedules a retry.
	PendingTimeoutSeconds int `mapstructure:"pending_timeout_seconds" validate:"required,gt=0"`

	// ProcessingTimeoutSeconds is how long a claimed task may process
	// before it is returned to the queue.
	ProcessingTimeoutSeconds int `mapstructure:"processing_timeout_seconds" validate:"required,gt=0"`

	// HeartbeatTimeoutSeconds is how long a consumer may go silent while
	// holding a task before it is treated as dead.
	HeartbeatTimeoutSeconds int `mapstructure:"heartbeat_timeout_seconds" validate:"required,gt=0"`

	// LockStalenessMinutes is the age past which a persisted file lock is
	// considered abandoned and force-released on startup.
	LockStalenessMinutes int `mapstructure:"lock_staleness_minutes" validate:"required,gt=0"`

	// BackoffScheduleSeconds is the retry backoff schedule, indexed by
	// retry count and clamped to its last entry.
	BackoffScheduleSeconds []int `mapstructure:"backoff_schedule_seconds" validate:"required,min=1,dive,gt=0"`

	// DefaultTaskType is the classification applied when the keyword
	// heuristic is inconclusive. Defaults to write: serializing an
	// ambiguous task is safer than running it concurrently.
	DefaultTaskType string `mapstructure:"default_task_type" validate:"required,oneof=read_only write"`

	// EventBufferSize is the per-subscriber event channel depth.
	EventBufferSize int `mapstructure:"event_buffer_size" validate:"required,gt=0"`
}

// SweepInterval returns the supervisor sweep period as a duration.
func (c BrokerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// PendingTimeout returns the pending pickup deadline as a duration.
func (c BrokerConfig) PendingTimeout() time.Duration {
	return time.Duration(c.PendingTimeoutSeconds) * time.Second
}

// ProcessingTimeout returns the processing deadline as a duration.
func (c BrokerConfig) ProcessingTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeoutSeconds) * time.Second
}

// HeartbeatTimeout returns the consumer liveness deadline as a duration.
func (c BrokerConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSeconds) * time.Second
}

// LockStaleness returns the file-lock staleness window as a duration.
func (c BrokerConfig) LockStaleness() time.Duration {
	return time.Duration(c.LockStalenessMinutes) * time.Minute
}

// BackoffSchedule returns the retry backoff schedule as durations.
func (c BrokerConfig) BackoffSchedule() []time.Duration {
	schedule := make([]time.Duration, len(c.BackoffScheduleSeconds))
	for i, s := range c.BackoffScheduleSeconds {
		schedule[i] = time.Duration(s) * time.Second
	}
	return schedule
}
