// Package kv exposes a handful of Redis data structures (string cache, hash
// records, list queue). Every command runs on the worker pool.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docbridge/internal/dbpool"
	"docbridge/internal/domain"
	"docbridge/internal/worker"
)

const DefaultTTL = 300 * time.Second

type Service struct {
	rdb     *redis.Client
	timeout time.Duration
	pool    *worker.Pool
}

func NewService(r *dbpool.Redis, pool *worker.Pool) *Service {
	return &Service{rdb: r.Client(), timeout: r.SelectionTimeout(), pool: pool}
}

func (s *Service) classify(err error) error {
	return dbpool.Classify("redis", s.timeout, err)
}

func recordKey(id string) string { return "user:" + id }
func queueKey(name string) string { return "queue:" + name }

// SetCache stores value under key for ttl; ttl <= 0 uses DefaultTTL.
func (s *Service) SetCache(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	octx := context.WithoutCancel(ctx)
	return worker.Exec(ctx, s.pool, func() error {
		return s.classify(s.rdb.SetEx(octx, key, value, ttl).Err())
	})
}

func (s *Service) GetCache(ctx context.Context, key string) (string, error) {
	octx := context.WithoutCancel(ctx)
	return worker.Run(ctx, s.pool, func() (string, error) {
		v, err := s.rdb.Get(octx, key).Result()
		if errors.Is(err, redis.Nil) || (err == nil && v == "") {
			return "", fmt.Errorf("cache key %q: %w", key, domain.ErrNotFound)
		}
		return v, s.classify(err)
	})
}

func (s *Service) PutRecord(ctx context.Context, id string, fields map[string]string) error {
	octx := context.WithoutCancel(ctx)
	values := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	return worker.Exec(ctx, s.pool, func() error {
		return s.classify(s.rdb.HSet(octx, recordKey(id), values...).Err())
	})
}

func (s *Service) GetRecord(ctx context.Context, id string) (map[string]string, error) {
	octx := context.WithoutCancel(ctx)
	return worker.Run(ctx, s.pool, func() (map[string]string, error) {
		m, err := s.rdb.HGetAll(octx, recordKey(id)).Result()
		if err != nil {
			return nil, s.classify(err)
		}
		if len(m) == 0 {
			return nil, fmt.Errorf("record %q: %w", id, domain.ErrNotFound)
		}
		return m, nil
	})
}

// Enqueue appends item to the named queue and returns the queue length.
func (s *Service) Enqueue(ctx context.Context, name, item string) (int64, error) {
	octx := context.WithoutCancel(ctx)
	return worker.Run(ctx, s.pool, func() (int64, error) {
		n, err := s.rdb.RPush(octx, queueKey(name), item).Result()
		return n, s.classify(err)
	})
}

// Dequeue pops the oldest item. ok is false when the queue is empty.
func (s *Service) Dequeue(ctx context.Context, name string) (item string, ok bool, err error) {
	octx := context.WithoutCancel(ctx)
	type popped struct {
		item string
		ok   bool
	}
	p, err := worker.Run(ctx, s.pool, func() (popped, error) {
		v, err := s.rdb.LPop(octx, queueKey(name)).Result()
		if errors.Is(err, redis.Nil) {
			return popped{}, nil
		}
		if err != nil {
			return popped{}, s.classify(err)
		}
		return popped{item: v, ok: true}, nil
	})
	return p.item, p.ok, err
}
