package dbpool

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbridge/internal/domain"
)

func openTestSQLite(t *testing.T, cfg domain.PoolConfig) *SQLite {
	t.Helper()
	dsn := SQLiteDSN(filepath.Join(t.TempDir(), "test.db"))
	p, err := OpenSQLite(context.Background(), dsn, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestOpenSQLite_WarmsMinimum(t *testing.T) {
	p := openTestSQLite(t, domain.PoolConfig{MaxConnections: 5, MinConnections: 3, SelectionTimeout: time.Second})

	st := p.Stats()
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, 3, st.Open)
	assert.Equal(t, 3, st.Idle)
	assert.Equal(t, 0, st.InUse)
}

func TestOpenSQLite_MinAboveMaxFailsFast(t *testing.T) {
	_, err := OpenSQLite(context.Background(), SQLiteDSN(filepath.Join(t.TempDir(), "x.db")),
		domain.PoolConfig{MaxConnections: 1, MinConnections: 2, SelectionTimeout: time.Second}, zerolog.Nop())

	var ce *domain.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "min_connections", ce.Field)
}

func TestOpenSQLite_UnreachableIsConnectionError(t *testing.T) {
	dsn := SQLiteDSN(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	_, err := OpenSQLite(context.Background(), dsn, domain.DefaultPoolConfig(), zerolog.Nop())

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "sqlite", ce.Backend)
}

func TestSQLite_BorrowTimesOutWhenExhausted(t *testing.T) {
	p := openTestSQLite(t, domain.PoolConfig{MaxConnections: 1, MinConnections: 0, SelectionTimeout: 30 * time.Millisecond})

	held, err := p.Borrow(context.Background())
	require.NoError(t, err)

	_, err = p.Borrow(context.Background())
	var pt *PoolTimeoutError
	require.ErrorAs(t, err, &pt)
	assert.Equal(t, 30*time.Millisecond, pt.Timeout)

	require.NoError(t, held.Close())
	c, err := p.Borrow(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestSQLite_Do(t *testing.T) {
	p := openTestSQLite(t, domain.PoolConfig{MaxConnections: 2, SelectionTimeout: time.Second})

	var n int
	err := p.Do(context.Background(), func(c *sql.Conn) error {
		return c.QueryRowContext(context.Background(), "SELECT 1 + 1").Scan(&n)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestSQLite_WarmRestoresAfterIdleClose(t *testing.T) {
	p := openTestSQLite(t, domain.PoolConfig{MaxConnections: 4, MinConnections: 2, SelectionTimeout: time.Second})

	// drop idle connections the way an idle timeout would
	p.DB().SetMaxIdleConns(0)
	assert.Equal(t, 0, p.Stats().Open)
	p.DB().SetMaxIdleConns(4)

	require.NoError(t, p.Warm(context.Background()))
	assert.Equal(t, 2, p.Stats().Open)

	// already warm: nothing to do
	require.NoError(t, p.Warm(context.Background()))
	assert.Equal(t, 2, p.Stats().Open)
}

func TestSQLite_Close(t *testing.T) {
	p := openTestSQLite(t, domain.PoolConfig{MaxConnections: 1, SelectionTimeout: time.Second})

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, StateClosed, p.State())
	assert.NoError(t, p.Close(context.Background()))

	_, err := p.Borrow(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}
