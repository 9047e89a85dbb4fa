// Package users runs user CRUD against a store.Repository by handing each
// call to the worker pool, so request goroutines never sit on a pooled
// database connection themselves.
package users

import (
	"context"

	"github.com/rs/zerolog"

	"docbridge/internal/domain"
	"docbridge/internal/store"
	"docbridge/internal/worker"
)

type Service struct {
	repo    store.Repository
	pool    *worker.Pool
	stripes *Stripes
	log     zerolog.Logger
}

type Option func(*Service)

// WithSerializedWrites orders concurrent updates and deletes of the same id.
func WithSerializedWrites(stripes int) Option {
	return func(s *Service) { s.stripes = NewStripes(stripes) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(repo store.Repository, pool *worker.Pool, opts ...Option) *Service {
	s := &Service{repo: repo, pool: pool, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// opCtx keeps request values for the store call but drops cancellation:
// once a worker picks the call up it runs to completion.
func opCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (s *Service) Create(ctx context.Context, in domain.UserCreate) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	octx := opCtx(ctx)
	id, err := worker.Run(ctx, s.pool, func() (string, error) {
		return s.repo.Create(octx, in)
	})
	if err != nil {
		return "", err
	}
	s.log.Debug().Str("user_id", id).Msg("user created")
	return id, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	octx := opCtx(ctx)
	return worker.Run(ctx, s.pool, func() (domain.User, error) {
		return s.repo.Get(octx, id)
	})
}

func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	octx := opCtx(ctx)
	return worker.Run(ctx, s.pool, func() ([]domain.User, error) {
		return s.repo.List(octx)
	})
}

func (s *Service) Update(ctx context.Context, id string, u domain.UserUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	octx := opCtx(ctx)
	return worker.Exec(ctx, s.pool, func() error {
		return s.stripes.With(id, func() error {
			return s.repo.Update(octx, id, u)
		})
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	octx := opCtx(ctx)
	return worker.Exec(ctx, s.pool, func() error {
		return s.stripes.With(id, func() error {
			return s.repo.Delete(octx, id)
		})
	})
}
