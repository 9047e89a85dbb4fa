package dbpool

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docbridge/internal/domain"
)

const backendRedis = "redis"

type RedisOptions struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Redis wraps a go-redis client whose pool is bounded by PoolConfig.
type Redis struct {
	lifecycle
	client *redis.Client
	cfg    domain.PoolConfig
	log    zerolog.Logger
}

func ConnectRedis(ctx context.Context, ro RedisOptions, cfg domain.PoolConfig, log zerolog.Logger) (*Redis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         ro.Addr,
		Password:     ro.Password,
		DB:           ro.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: cfg.MinConnections,
		PoolTimeout:  cfg.SelectionTimeout,
		DialTimeout:  cfg.SelectionTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.SelectionTimeout)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, &ConnectionError{Backend: backendRedis, Target: ro.Addr, Err: err}
	}
	p := &Redis{client: rdb, cfg: cfg, log: log.With().Str("backend", backendRedis).Logger()}
	p.set(StateReady)
	p.log.Info().
		Str("addr", ro.Addr).
		Int("max_connections", cfg.MaxConnections).
		Int("min_connections", cfg.MinConnections).
		Dur("selection_timeout", cfg.SelectionTimeout).
		Msg("connection pool ready")
	return p, nil
}

func (p *Redis) Client() *redis.Client { return p.client }

func (p *Redis) SelectionTimeout() time.Duration { return p.cfg.SelectionTimeout }

// Warm pings the server; go-redis refills MinIdleConns on its own.
func (p *Redis) Warm(ctx context.Context) error {
	if p.isClosed() {
		return ErrPoolClosed
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SelectionTimeout)
	defer cancel()
	return Classify(backendRedis, p.cfg.SelectionTimeout, p.client.Ping(ctx).Err())
}

func (p *Redis) Stats() Stats {
	ps := p.client.PoolStats()
	return Stats{
		Backend:   backendRedis,
		State:     p.State().String(),
		Open:      int(ps.TotalConns),
		InUse:     int(ps.TotalConns - ps.IdleConns),
		Idle:      int(ps.IdleConns),
		WaitCount: int64(ps.Misses),
	}
}

func (p *Redis) Close(context.Context) error {
	if p.closing() {
		return nil
	}
	p.log.Info().Msg("connection pool closing")
	return p.client.Close()
}
