package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server    Server         `mapstructure:"server"`
	Database  Database       `mapstructure:"database"`
	Redis     Redis          `mapstructure:"redis"`
	Webhook   Webhook        `mapstructure:"webhook"`
	Queue     Queue          `mapstructure:"queue"`
	Scheduler Scheduler      `mapstructure:"scheduler"`
	Connect   retry.Strategy `mapstructure:"connect"` // startup connectivity retries
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string        `mapstructure:"http_port"`     // HTTP port to listen on
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // full request read deadline
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // response write deadline
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Redis holds Redis connection parameters. Redis backs both the job queue
// and the scheduler locks.
type Redis struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// Webhook holds the outbound delivery endpoint configuration.
type Webhook struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Queue holds delayed-queue and worker-pool configuration.
type Queue struct {
	Name          string        `mapstructure:"name"`
	Concurrency   int           `mapstructure:"concurrency"`   // worker pool size
	RatePerSec    int           `mapstructure:"rate_per_sec"`  // global delivery rate limit
	MaxAttempts   int           `mapstructure:"max_attempts"`  // per job, including the first run
	BackoffDelay  time.Duration `mapstructure:"backoff_delay"` // base delay, doubled per attempt
	KeepCompleted Retention     `mapstructure:"keep_completed"`
	KeepFailed    Retention     `mapstructure:"keep_failed"`
}

// Retention bounds how many finished jobs are kept and for how long.
type Retention struct {
	MaxAge   time.Duration `mapstructure:"max_age"`
	MaxCount int64         `mapstructure:"max_count"`
}

// Scheduler holds daily-scan and recovery configuration.
type Scheduler struct {
	Enabled         bool          `mapstructure:"enabled"`
	TargetHour      int           `mapstructure:"target_hour"` // local wall-clock send hour
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	RecoveryEnabled bool          `mapstructure:"recovery_enabled"`
	RecoveryLockTTL time.Duration `mapstructure:"recovery_lock_ttl"`
	LookbackHours   int           `mapstructure:"lookback_hours"`
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// Lookback returns the recovery lookback window as a duration.
func (s Scheduler) Lookback() time.Duration {
	return time.Duration(s.LookbackHours) * time.Hour
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",

		"redis.address":  "REDIS_ADDRESS",
		"redis.password": "REDIS_PASSWORD",
		"redis.database": "REDIS_DATABASE",

		"webhook.url": "WEBHOOK_URL",

		"server.http_port": "HTTP_PORT",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// Must loads and validates the configuration from file and environment variables.
//
// It panics if configuration cannot be read or unmarshalled.
func Must() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	if cfg.Webhook.URL == "" {
		zlog.Logger.Panic().Msg("webhook.url is required")
	}

	return &cfg
}
