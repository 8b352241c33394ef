package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. RELAY_DB_DSN for db_dsn.
const EnvPrefix = "RELAY"

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	DBDriver string `mapstructure:"db_driver"`
	DBDSN    string `mapstructure:"db_dsn"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	RecheckDelay   time.Duration `mapstructure:"recheck_delay"`
	PersistWorkers int           `mapstructure:"persist_workers"`
	PersistQueue   int           `mapstructure:"persist_queue"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`

	SendBuffer int     `mapstructure:"send_buffer"`
	RateLimit  float64 `mapstructure:"rate_limit"`
	RateBurst  int     `mapstructure:"rate_burst"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`
	// TokenIssueKey authorizes GET /token; empty disables the endpoint.
	TokenIssueKey string `mapstructure:"token_issue_key"`

	CatalogURL     string        `mapstructure:"catalog_url"`
	CatalogTimeout time.Duration `mapstructure:"catalog_timeout"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml if present, then
// RELAY_* environment variables, which win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Str("module", "config").Msg("no .env file")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load without the .env step, reading the given yaml file. A
// missing file is not an error.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Info().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults and environment")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_dsn", "host=localhost user=user password=password dbname=dealchat port=5432 sslmode=disable")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", DefaultCacheTTL)

	v.SetDefault("recheck_delay", DefaultRecheckDelay)
	v.SetDefault("persist_workers", DefaultPersistWorkers)
	v.SetDefault("persist_queue", DefaultPersistQueue)
	v.SetDefault("persist_timeout", DefaultPersistTimeout)

	v.SetDefault("send_buffer", DefaultSendBuffer)
	v.SetDefault("rate_limit", DefaultEventsPerSecond)
	v.SetDefault("rate_burst", DefaultEventBurst)

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", DefaultTokenTTL)
	v.SetDefault("token_issue_key", "")

	v.SetDefault("catalog_url", "")
	v.SetDefault("catalog_timeout", DefaultCatalogTimeout)

	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)
}

// Validate rejects settings the relay cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PersistWorkers <= 0 {
		return fmt.Errorf("persist_workers must be positive, got %d", c.PersistWorkers)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
