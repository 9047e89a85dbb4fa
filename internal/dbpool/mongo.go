package dbpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"docbridge/internal/domain"
)

const backendMongo = "mongo"

// Mongo wraps a driver client whose own pool is bounded by PoolConfig.
// Borrowing is implicit in every driver call.
type Mongo struct {
	lifecycle
	client *mongo.Client
	cfg    domain.PoolConfig
	log    zerolog.Logger

	open  atomic.Int64
	inUse atomic.Int64
}

func ConnectMongo(ctx context.Context, uri string, cfg domain.PoolConfig, log zerolog.Logger) (*Mongo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Mongo{cfg: cfg, log: log.With().Str("backend", backendMongo).Logger()}

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(uint64(cfg.MaxConnections)).
		SetMinPoolSize(uint64(cfg.MinConnections)).
		SetServerSelectionTimeout(cfg.SelectionTimeout).
		SetPoolMonitor(&event.PoolMonitor{Event: p.observe})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, &ConnectionError{Backend: backendMongo, Target: uri, Err: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.SelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &ConnectionError{Backend: backendMongo, Target: uri, Err: err}
	}
	p.client = client
	p.set(StateReady)
	p.log.Info().
		Int("max_connections", cfg.MaxConnections).
		Int("min_connections", cfg.MinConnections).
		Dur("selection_timeout", cfg.SelectionTimeout).
		Msg("connection pool ready")
	return p, nil
}

func (p *Mongo) observe(ev *event.PoolEvent) {
	switch ev.Type {
	case event.ConnectionCreated:
		p.open.Add(1)
	case event.ConnectionClosed:
		p.open.Add(-1)
	case event.GetSucceeded:
		p.inUse.Add(1)
	case event.ConnectionReturned:
		p.inUse.Add(-1)
	}
}

func (p *Mongo) Client() *mongo.Client { return p.client }

func (p *Mongo) SelectionTimeout() time.Duration { return p.cfg.SelectionTimeout }

// Warm only checks the primary still answers; the driver keeps
// MinPoolSize connections open in the background.
func (p *Mongo) Warm(ctx context.Context) error {
	if p.isClosed() {
		return ErrPoolClosed
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SelectionTimeout)
	defer cancel()
	return Classify(backendMongo, p.cfg.SelectionTimeout, p.client.Ping(ctx, readpref.Primary()))
}

func (p *Mongo) Stats() Stats {
	open, inUse := int(p.open.Load()), int(p.inUse.Load())
	return Stats{
		Backend: backendMongo,
		State:   p.State().String(),
		Open:    open,
		InUse:   inUse,
		Idle:    max(open-inUse, 0),
	}
}

func (p *Mongo) Close(ctx context.Context) error {
	if p.closing() {
		return nil
	}
	p.log.Info().Msg("connection pool closing")
	return p.client.Disconnect(ctx)
}
