// Package config provides configuration management using viper.
// It supports loading from YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Bot         BotConfig         `mapstructure:"bot"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Log         LogConfig         `mapstructure:"log"`
	Timezone    string            `mapstructure:"timezone" validate:"required"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	PublicURL       string        `mapstructure:"public_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size" validate:"gt=0"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AuthConfig holds token and identity provider settings.
type AuthConfig struct {
	JWTSecret  string                   `mapstructure:"jwt_secret" validate:"required,min=16"`
	Issuer     string                   `mapstructure:"issuer"`
	AccessTTL  time.Duration            `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL time.Duration            `mapstructure:"refresh_ttl" validate:"gt=0"`
	OAuth      map[string]OAuthProvider `mapstructure:"oauth" validate:"dive"`
}

// OAuthProvider configures one OAuth sign-in provider. Only "google" gets
// id-token verification through JWKSURL; other providers use UserInfoURL.
type OAuthProvider struct {
	ClientID     string   `mapstructure:"client_id" validate:"required"`
	ClientSecret string   `mapstructure:"client_secret" validate:"required"`
	AuthURL      string   `mapstructure:"auth_url" validate:"required,url"`
	TokenURL     string   `mapstructure:"token_url" validate:"required,url"`
	UserInfoURL  string   `mapstructure:"userinfo_url" validate:"omitempty,url"`
	JWKSURL      string   `mapstructure:"jwks_url" validate:"omitempty,url"`
	Scopes       []string `mapstructure:"scopes"`
}

// BotConfig holds Telegram companion bot configuration. An empty token
// disables the bot.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// AdminConfig holds the Telegram ids allowed to run admin bot commands.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// ProgressionConfig holds gameplay tuning.
type ProgressionConfig struct {
	StarterProvinces  []string      `mapstructure:"starter_provinces" validate:"min=1"`
	MaxLives          int           `mapstructure:"max_lives" validate:"gt=0"`
	StartingCredits   int64         `mapstructure:"starting_credits" validate:"gte=0"`
	LifeRegenInterval time.Duration `mapstructure:"life_regen_interval" validate:"gt=0"`
	DailyReward       int64         `mapstructure:"daily_reward" validate:"gte=0"`
}

// StorageConfig holds S3-compatible object storage settings. An empty bucket
// disables uploads and scheduled backups to storage.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// BackupConfig schedules the nightly export.
type BackupConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode,
	)
}

// Load reads configuration from .env, the config file and environment variables,
// then validates it.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// DATABASE_HOST, AUTH_JWT_SECRET, STORAGE_BUCKET, ...
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
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

// Validate checks struct constraints and the timezone name.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "deepsafe")
	v.SetDefault("database.name", "deepsafe")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "deepsafe")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "720h")

	v.SetDefault("progression.starter_provinces", []string{"RM"})
	v.SetDefault("progression.max_lives", 5)
	v.SetDefault("progression.starting_credits", 100)
	v.SetDefault("progression.life_regen_interval", "30m")
	v.SetDefault("progression.daily_reward", 10)

	v.SetDefault("bot.token", "")
	v.SetDefault("admin.ids", []int64{})

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.use_path_style", false)

	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.schedule", "0 3 * * *")
	v.SetDefault("backup.prefix", "backups")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("timezone", "Europe/Rome")
}

// IsAdmin checks if a Telegram user id is in the admin list.
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == telegramID {
			return true
		}
	}
	return false
}
