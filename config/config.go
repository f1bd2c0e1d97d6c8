/*
Package config loads the recognized configuration surface.

RECOGNIZED OPTIONS:
  http.port             HTTP listen port
  db.path               SQLite database path (":memory:" for in-memory)
  pool.max_size         bounded session pool size
  pool.connect_timeout  cap on the whole Acquire step
  cache.ttl             cache entry lifetime (secondary safety net)
  cache.backend         "memory" or "redis"
  redis.addr/password/db
  amqp.url/exchange/queue  invalidation events (disabled when url empty)
  decimal.rounding_mode    fixed to "half_up"; anything else is rejected
  decimal.scale            fixed to 2; anything else is rejected

SOURCES:
  Defaults, then an optional YAML file, then REVENUE_* environment
  variables (dots become underscores: REVENUE_POOL_MAX_SIZE).
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/revenue-engine/revenue"
)

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Redis   RedisConfig   `mapstructure:"redis"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	Decimal DecimalConfig `mapstructure:"decimal"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type PoolConfig struct {
	MaxSize        int           `mapstructure:"max_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	Backend string        `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

type DecimalConfig struct {
	RoundingMode string `mapstructure:"rounding_mode"`
	Scale        int    `mapstructure:"scale"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	roundingHalfUp = "half_up"
)

// Load reads defaults, the optional file at path, and REVENUE_* env vars.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("http.port", 8080)
	v.SetDefault("db.path", "revenue.db")
	v.SetDefault("pool.max_size", 10)
	v.SetDefault("pool.connect_timeout", 5*time.Second)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "revenue.events")
	v.SetDefault("amqp.queue", "revenue.invalidation")
	v.SetDefault("decimal.rounding_mode", roundingHalfUp)
	v.SetDefault("decimal.scale", revenue.TotalScale)

	v.SetEnvPrefix("REVENUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the fixed and bounded options.
func (c Config) Validate() error {
	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool.max_size must be at least 1, got %d", c.Pool.MaxSize)
	}
	if c.Pool.ConnectTimeout <= 0 {
		return fmt.Errorf("pool.connect_timeout must be positive, got %s", c.Pool.ConnectTimeout)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.Backend != BackendMemory && c.Cache.Backend != BackendRedis {
		return fmt.Errorf("cache.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Cache.Backend)
	}
	// The rounding rule and scale are part of the engine's contract, not
	// tunables; the options exist so a mismatch fails loudly at startup.
	if c.Decimal.RoundingMode != roundingHalfUp {
		return fmt.Errorf("decimal.rounding_mode is fixed to %q, got %q", roundingHalfUp, c.Decimal.RoundingMode)
	}
	if c.Decimal.Scale != revenue.TotalScale {
		return fmt.Errorf("decimal.scale is fixed to %d, got %d", revenue.TotalScale, c.Decimal.Scale)
	}
	return nil
}
