package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbridge/internal/dbpool"
	"docbridge/internal/domain"
)

// Runs against a real server only when DOCBRIDGE_TEST_MONGO_URI is set.
func newMongoRepo(t *testing.T) Repository {
	t.Helper()
	uri := os.Getenv("DOCBRIDGE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DOCBRIDGE_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	pool, err := dbpool.ConnectMongo(ctx, uri,
		domain.PoolConfig{MaxConnections: 4, MinConnections: 1, SelectionTimeout: 2 * time.Second}, zerolog.Nop())
	require.NoError(t, err)

	database := "docbridge_test_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_ = pool.Client().Database(database).Drop(ctx)
		_ = pool.Close(ctx)
	})
	return NewMongoRepo(pool, database)
}

func TestMongoRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := newMongoRepo(t)

	id, err := repo.Create(ctx, domain.UserCreate{Name: "Ada", Email: "ada@example.com", Age: 36})
	require.NoError(t, err)
	assert.Len(t, id, 24)

	u, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.User{ID: id, Name: "Ada", Email: "ada@example.com", Age: 36}, u)

	age := 40
	require.NoError(t, repo.Update(ctx, id, domain.UserUpdate{Age: &age}))
	u, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 40, u.Age)
	assert.Equal(t, "Ada", u.Name)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, repo.Delete(ctx, id))
	assert.ErrorIs(t, repo.Delete(ctx, id), domain.ErrNotFound)
}

func TestMongoRepo_MalformedIDIsNotFound(t *testing.T) {
	repo := newMongoRepo(t)

	_, err := repo.Get(context.Background(), "not-an-object-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
