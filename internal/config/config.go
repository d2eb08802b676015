// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Redemption RedemptionConfig `mapstructure:"redemption"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Messages   MessagesConfig   `mapstructure:"messages"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
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

// ServerConfig holds the dashboard HTTP server configuration.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// RedemptionConfig holds redemption engine configuration.
// CodeLimitPerUser caps successful claims per participant; 0 disables the cap.
type RedemptionConfig struct {
	CodeLimitPerUser int `mapstructure:"code_limit_per_user"`
}

// IngestionConfig holds bulk upload configuration.
type IngestionConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// MessagesConfig holds the canned-message channel configuration.
// Outcome replies are forwarded from ChannelID by numeric message id; when
// ChannelID is 0 the bot falls back to plain text replies.
type MessagesConfig struct {
	ChannelID int64                 `mapstructure:"channel_id"`
	Locales   map[string]MessageIDs `mapstructure:"locales"`
}

// MessageIDs maps redemption outcomes to message ids in the broadcast channel.
type MessageIDs struct {
	Start        int            `mapstructure:"start"`
	CodeNotFound int            `mapstructure:"code_not_found"`
	CodeUsed     int            `mapstructure:"code_used"`
	CodeAccepted int            `mapstructure:"code_accepted"`
	UsageLimit   int            `mapstructure:"usage_limit"`
	PrizeByTier  map[string]int `mapstructure:"prize_by_tier"`
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

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, REDEMPTION_CODE_LIMIT_PER_USER.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "promobot")
	v.SetDefault("database.name", "promobot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("redemption.code_limit_per_user", 0)
	v.SetDefault("ingestion.batch_size", 5000)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MessageIDs returns the canned message ids for a locale, falling back to
// "uz" when the locale has no entry.
func (m *MessagesConfig) MessageIDs(lang string) MessageIDs {
	if ids, ok := m.Locales[lang]; ok {
		return ids
	}
	return m.Locales["uz"]
}
