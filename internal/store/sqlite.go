package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docbridge/internal/dbpool"
	"docbridge/internal/domain"
)

const usersCollection = "users"

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  body TEXT NOT NULL CHECK(json_valid(body)),
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(collection, created_at);
`
	_, err := db.Exec(schema)
	return err
}

// Repository is the synchronous user store the worker pool calls into.
type Repository interface {
	Create(ctx context.Context, in domain.UserCreate) (string, error)
	Get(ctx context.Context, id string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, id string, u domain.UserUpdate) error
	Delete(ctx context.Context, id string) error
}

// userBody is the JSON document stored per user.
type userBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

type sqliteRepo struct{ pool *dbpool.SQLite }

func NewSQLiteRepo(pool *dbpool.SQLite) Repository { return &sqliteRepo{pool: pool} }

func (r *sqliteRepo) Create(ctx context.Context, in domain.UserCreate) (string, error) {
	id := "usr_" + uuid.NewString()
	body, err := json.Marshal(userBody{Name: in.Name, Email: in.Email, Age: in.Age})
	if err != nil {
		return "", err
	}
	err = r.pool.Do(ctx, func(c *sql.Conn) error {
		_, err := c.ExecContext(ctx, `
INSERT INTO documents (collection,id,body,created_at,updated_at)
VALUES (?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`, usersCollection, id, string(body))
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *sqliteRepo) Get(ctx context.Context, id string) (domain.User, error) {
	var raw string
	err := r.pool.Do(ctx, func(c *sql.Conn) error {
		return c.QueryRowContext(ctx, `SELECT body FROM documents WHERE collection=? AND id=?`, usersCollection, id).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(id, raw)
}

func (r *sqliteRepo) List(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := r.pool.Do(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, `
SELECT id, body FROM documents WHERE collection=? ORDER BY created_at, rowid`, usersCollection)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id, raw string
			if err := rows.Scan(&id, &raw); err != nil {
				return err
			}
			u, err := decodeUser(id, raw)
			if err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *sqliteRepo) Update(ctx context.Context, id string, u domain.UserUpdate) error {
	// json_set(body, '$.name', ?, '$.age', ?) with only the fields that were sent
	var paths []string
	var args []any
	for field, v := range u.Fields() {
		paths = append(paths, "'$."+field+"', ?")
		args = append(args, v)
	}
	if len(paths) == 0 {
		_, err := r.Get(ctx, id)
		return err
	}
	args = append(args, usersCollection, id)
	query := `UPDATE documents SET body=json_set(body, ` + strings.Join(paths, ", ") + `), updated_at=CURRENT_TIMESTAMP
WHERE collection=? AND id=?`

	return r.pool.Do(ctx, func(c *sql.Conn) error {
		res, err := c.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		return requireAffected(res, id)
	})
}

func (r *sqliteRepo) Delete(ctx context.Context, id string) error {
	return r.pool.Do(ctx, func(c *sql.Conn) error {
		res, err := c.ExecContext(ctx, "DELETE FROM documents WHERE collection=? AND id=?", usersCollection, id)
		if err != nil {
			return err
		}
		return requireAffected(res, id)
	})
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func decodeUser(id, raw string) (domain.User, error) {
	var b userBody
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return domain.User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return domain.User{ID: id, Name: b.Name, Email: b.Email, Age: b.Age}, nil
}
