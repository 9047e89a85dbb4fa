package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"docbridge/internal/domain"
)

const backendSQLite = "sqlite"

// SQLiteDSN builds the DSN used for a file database: WAL journal and a busy
// timeout so concurrent writers wait instead of failing.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
}

type SQLite struct {
	lifecycle
	db  *sql.DB
	cfg domain.PoolConfig
	log zerolog.Logger
}

// OpenSQLite opens the pool, checks the database answers within the
// selection timeout and warms the minimum connections.
func OpenSQLite(ctx context.Context, dsn string, cfg domain.PoolConfig, log zerolog.Logger) (*SQLite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &ConnectionError{Backend: backendSQLite, Target: dsn, Err: err}
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	p := &SQLite{db: db, cfg: cfg, log: log.With().Str("backend", backendSQLite).Logger()}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.SelectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Backend: backendSQLite, Target: dsn, Err: err}
	}
	if err := p.Warm(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Backend: backendSQLite, Target: dsn, Err: err}
	}
	p.set(StateReady)
	p.log.Info().
		Int("max_connections", cfg.MaxConnections).
		Int("min_connections", cfg.MinConnections).
		Dur("selection_timeout", cfg.SelectionTimeout).
		Msg("connection pool ready")
	return p, nil
}

// DB returns the underlying handle for schema setup.
func (p *SQLite) DB() *sql.DB { return p.db }

// Borrow takes one connection out of the pool, waiting at most the selection
// timeout. The caller must Close it to give it back.
func (p *SQLite) Borrow(ctx context.Context) (*sql.Conn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	bctx, cancel := context.WithTimeout(ctx, p.cfg.SelectionTimeout)
	defer cancel()
	c, err := p.db.Conn(bctx)
	if err != nil {
		if p.isClosed() {
			return nil, ErrPoolClosed
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &PoolTimeoutError{Backend: backendSQLite, Timeout: p.cfg.SelectionTimeout, Err: err}
		}
		return nil, err
	}
	return c, nil
}

// Do runs fn on a borrowed connection and returns it afterwards.
func (p *SQLite) Do(ctx context.Context, fn func(*sql.Conn) error) error {
	c, err := p.Borrow(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func (p *SQLite) Warm(ctx context.Context) error {
	st := p.db.Stats()
	if st.OpenConnections >= p.cfg.MinConnections {
		return nil
	}
	need := p.cfg.MinConnections - st.InUse
	if need <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.SelectionTimeout)
	defer cancel()
	// hold all of them at once so the pool has to open distinct connections
	conns := make([]*sql.Conn, need)
	g, gctx := errgroup.WithContext(ctx)
	for i := range conns {
		i := i
		g.Go(func() error {
			c, err := p.db.Conn(gctx)
			if err != nil {
				return err
			}
			conns[i] = c
			return c.PingContext(gctx)
		})
	}
	err := g.Wait()
	for _, c := range conns {
		if c != nil {
			_ = c.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("warm %d connections: %w", need, err)
	}
	p.log.Debug().Int("opened", need).Int("open", p.db.Stats().OpenConnections).Msg("pool warmed")
	return nil
}

func (p *SQLite) Stats() Stats {
	st := p.db.Stats()
	return Stats{
		Backend:   backendSQLite,
		State:     p.State().String(),
		Open:      st.OpenConnections,
		InUse:     st.InUse,
		Idle:      st.Idle,
		WaitCount: st.WaitCount,
	}
}

func (p *SQLite) Close(context.Context) error {
	if p.closing() {
		return nil
	}
	p.log.Info().Msg("connection pool closing")
	return p.db.Close()
}
