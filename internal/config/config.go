package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SecureCookies  bool     `mapstructure:"secure_cookies"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type InvitationConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxTTL     time.Duration `mapstructure:"max_ttl"`
	Stream     string        `mapstructure:"stream"`
}

type TenantCacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type Config struct {
	DatabaseURL string            `mapstructure:"database_url"`
	BcryptCost  int               `mapstructure:"bcrypt_cost"`
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Session     SessionConfig     `mapstructure:"session"`
	Invitation  InvitationConfig  `mapstructure:"invitation"`
	TenantCache TenantCacheConfig `mapstructure:"tenant_cache"`
	Log         LogConfig         `mapstructure:"log"`
}

// Load reads config.yaml from path (or . and ./config when empty), applies
// OPS_* environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ops")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Defaults double as key registrations so AutomaticEnv can see nested keys.
	v.SetDefault("database_url", "")
	v.SetDefault("bcrypt_cost", 12)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.secure_cookies", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.jwt_secret", "")
	v.SetDefault("session.ttl", 12*time.Hour)
	v.SetDefault("invitation.default_ttl", 7*24*time.Hour)
	v.SetDefault("invitation.max_ttl", 30*24*time.Hour)
	v.SetDefault("invitation.stream", "ops:invitations")
	v.SetDefault("tenant_cache.size", 512)
	v.SetDefault("tenant_cache.ttl", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("database_url must be set")
	}
	if len(c.Session.JWTSecret) < 32 {
		return errors.New("session.jwt_secret must be at least 32 bytes")
	}
	if c.Invitation.DefaultTTL <= 0 || c.Invitation.DefaultTTL > c.Invitation.MaxTTL {
		return fmt.Errorf("invitation.default_ttl must be within (0, %s]", c.Invitation.MaxTTL)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("bcrypt_cost must be between 4 and 31")
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	return nil
}
