package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/terminal-bench/assetdao/internal/leader"
	"github.com/terminal-bench/assetdao/internal/metrics"
	"github.com/terminal-bench/assetdao/internal/persistence"
	"github.com/terminal-bench/assetdao/internal/relay"
	"github.com/terminal-bench/assetdao/internal/scheduler"
	"github.com/terminal-bench/assetdao/pkg/messaging"
)

// EnvPrefix prefixes every environment override, e.g. ASSETDAO_SERVER_ADDR
const EnvPrefix = "ASSETDAO"

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig       `mapstructure:"server"`
	Log      LogConfig          `mapstructure:"log"`
	Auth     AuthConfig         `mapstructure:"auth"`
	Redis    RedisConfig        `mapstructure:"redis"`
	Database persistence.Config `mapstructure:"database"`
	NATS     messaging.Config   `mapstructure:"nats"`
	Influx   metrics.Config     `mapstructure:"influx"`
	Etcd     leader.Config      `mapstructure:"etcd"`
	Schedule scheduler.Config   `mapstructure:"schedule"`
	Relay    relay.Config       `mapstructure:"relay"`
	Breaker  BreakerConfig      `mapstructure:"breaker"`
	Genesis  string             `mapstructure:"genesis"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds token settings
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// RedisConfig holds the idempotency cache settings. An empty Addr disables it.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// BreakerConfig holds circuit breaker settings for relay sinks
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HalfOpenMax int           `mapstructure:"half_open_max"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit_max", 120)
	v.SetDefault("server.rate_limit_window", time.Minute)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)

	v.SetDefault("database.url", "")
	v.SetDefault("database.table_prefix", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "assetd")
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("nats.stream", "")

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("influx.batch_size", 100)
	v.SetDefault("influx.flush_interval", time.Second)

	v.SetDefault("etcd.endpoints", []string{})
	v.SetDefault("etcd.prefix", "/assetdao/leader")
	v.SetDefault("etcd.ttl", 10*time.Second)
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.identity", hostname())

	v.SetDefault("schedule.snapshot_cron", "0 */5 * * * *")
	v.SetDefault("schedule.prune_cron", "0 30 3 * * *")
	v.SetDefault("schedule.keep_latest", 10)

	v.SetDefault("relay.source", "assetd")
	v.SetDefault("relay.buffer", 256)
	v.SetDefault("relay.sink_timeout", 5*time.Second)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.half_open_max", 1)

	v.SetDefault("genesis", "genesis.yaml")
}

// Load reads path (or ./assetdao.yaml when path is empty) and applies
// ASSETDAO_* environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("assetdao")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/assetdao")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings needed to serve
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Server.RateLimitMax <= 0 || c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server rate limit must be positive")
	}
	if c.Genesis == "" && c.Database.URL == "" {
		return fmt.Errorf("either genesis or database.url is required")
	}
	return nil
}

// Logger builds the root logger
func (c LogConfig) Logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "assetd"
	}
	return h
}
