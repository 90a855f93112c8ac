// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Draw      DrawConfig      `mapstructure:"draw"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Ops       OpsConfig       `mapstructure:"ops"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
}

// ChannelConfig identifies the gated channel participants must join.
type ChannelConfig struct {
	ID       int64  `mapstructure:"id"`
	Username string `mapstructure:"username"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// DrawConfig holds draw engine and referral settings.
type DrawConfig struct {
	DefaultDurationDays     int           `mapstructure:"default_duration_days"`
	TicketsPerReferral      int64         `mapstructure:"tickets_per_referral"`
	MembershipConcurrency   int           `mapstructure:"membership_concurrency"`
	MembershipRatePerSecond float64       `mapstructure:"membership_rate_per_second"`
	ResolveTimeout          time.Duration `mapstructure:"resolve_timeout"`
}

// SchedulerConfig holds the periodic resolution settings.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OpsConfig controls the health/metrics HTTP listener.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, CHANNEL_ID, SCHEDULER_INTERVAL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide everything
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// AutomaticEnv only resolves keys viper already knows about
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.username", "")
	v.SetDefault("channel.id", 0)
	v.SetDefault("channel.username", "")
	v.SetDefault("database.password", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "invite2win")
	v.SetDefault("database.name", "invite2win")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("draw.default_duration_days", 7)
	v.SetDefault("draw.tickets_per_referral", 1)
	v.SetDefault("draw.membership_concurrency", 8)
	v.SetDefault("draw.membership_rate_per_second", 20)
	v.SetDefault("draw.resolve_timeout", "2m")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.addr", ":9090")
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Draw.DefaultDurationDays < 0 {
		return fmt.Errorf("draw.default_duration_days must not be negative, got %d", c.Draw.DefaultDurationDays)
	}
	if c.Draw.TicketsPerReferral <= 0 {
		return fmt.Errorf("draw.tickets_per_referral must be positive, got %d", c.Draw.TicketsPerReferral)
	}
	if c.Draw.MembershipConcurrency <= 0 {
		return fmt.Errorf("draw.membership_concurrency must be positive, got %d", c.Draw.MembershipConcurrency)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	return nil
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Admin.IDs, userID)
}
