package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"docbridge/internal/dbpool"
	"docbridge/internal/domain"
	"docbridge/internal/scheduler"
	"docbridge/internal/worker"
)

const EnvPrefix = "DOCBRIDGE"

type Config struct {
	HTTP        HTTPConfig          `mapstructure:"http"`
	Store       StoreConfig         `mapstructure:"store"`
	Pool        domain.PoolConfig   `mapstructure:"pool"`
	Worker      worker.Config       `mapstructure:"worker"`
	Users       UsersConfig         `mapstructure:"users"`
	Redis       dbpool.RedisOptions `mapstructure:"redis"`
	Maintenance MaintenanceConfig   `mapstructure:"maintenance"`
	Log         LogConfig           `mapstructure:"log"`
	Debug       DebugConfig         `mapstructure:"debug"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	SQLite SQLiteStore `mapstructure:"sqlite"`
	Mongo  MongoStore  `mapstructure:"mongo"`
}

type SQLiteStore struct {
	Path string `mapstructure:"path"`
}

type MongoStore struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type UsersConfig struct {
	SerializeWrites bool `mapstructure:"serialize_writes"`
	Stripes         int  `mapstructure:"stripes"`
}

type MaintenanceConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DebugConfig struct {
	Pprof bool `mapstructure:"pprof"`
}

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// SetDefaults registers every key, which also lets AutomaticEnv see them.
func SetDefaults(v *viper.Viper) {
	pool := domain.DefaultPoolConfig()
	wk := worker.DefaultConfig()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite.path", "docbridge.db")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "fastapi_db")
	v.SetDefault("pool.max_connections", pool.MaxConnections)
	v.SetDefault("pool.min_connections", pool.MinConnections)
	v.SetDefault("pool.selection_timeout", pool.SelectionTimeout)
	v.SetDefault("worker.count", wk.Workers)
	v.SetDefault("worker.queue_size", wk.QueueSize)
	v.SetDefault("worker.shutdown_grace", wk.ShutdownGrace)
	v.SetDefault("worker.operation_timeout", wk.OperationTimeout)
	v.SetDefault("users.serialize_writes", true)
	v.SetDefault("users.stripes", 64)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("maintenance.schedule", "@every 30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("debug.pprof", false)
}

// Load reads defaults, an optional config file and DOCBRIDGE_* environment
// variables into a validated Config. Flags must be bound to v beforehand.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("docbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if err := c.Worker.Validate(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLite.Path) == "" {
			return &domain.ConfigError{Field: "store.sqlite.path", Message: "is required for the sqlite driver"}
		}
	case DriverMongo:
		if strings.TrimSpace(c.Store.Mongo.URI) == "" {
			return &domain.ConfigError{Field: "store.mongo.uri", Message: "is required for the mongo driver"}
		}
		if strings.TrimSpace(c.Store.Mongo.Database) == "" {
			return &domain.ConfigError{Field: "store.mongo.database", Message: "is required for the mongo driver"}
		}
	default:
		return &domain.ConfigError{Field: "store.driver", Message: fmt.Sprintf("unknown driver %q", c.Store.Driver)}
	}
	if c.Users.Stripes <= 0 {
		return &domain.ConfigError{Field: "users.stripes", Message: "must be > 0"}
	}
	if err := scheduler.ValidateCronExpression(c.Maintenance.Schedule); err != nil {
		return &domain.ConfigError{Field: "maintenance.schedule", Message: err.Error()}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return &domain.ConfigError{Field: "log.level", Message: err.Error()}
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return &domain.ConfigError{Field: "log.format", Message: "must be console or json"}
	}
	return nil
}

// KVEnabled reports whether the Redis prototype routes should be served.
func (c *Config) KVEnabled() bool { return strings.TrimSpace(c.Redis.Addr) != "" }
