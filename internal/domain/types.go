package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// PoolConfig bounds a pooled client. It is fixed once the process starts.
type PoolConfig struct {
	MaxConnections   int           `mapstructure:"max_connections"`
	MinConnections   int           `mapstructure:"min_connections"`
	SelectionTimeout time.Duration `mapstructure:"selection_timeout"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxConnections: 50, MinConnections: 10, SelectionTimeout: 5 * time.Second}
}

// Validate reports the first violated bound as a *ConfigError.
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxConnections <= 0:
		return &ConfigError{Field: "max_connections", Message: "must be > 0"}
	case c.MinConnections < 0:
		return &ConfigError{Field: "min_connections", Message: "must be >= 0"}
	case c.MinConnections > c.MaxConnections:
		return &ConfigError{Field: "min_connections", Message: fmt.Sprintf("must be <= max_connections (%d)", c.MaxConnections)}
	case c.SelectionTimeout <= 0:
		return &ConfigError{Field: "selection_timeout", Message: "must be > 0"}
	}
	return nil
}

type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

type UserCreate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

// UserUpdate is a partial update; nil fields are left untouched.
type UserUpdate struct {
	Name *string `json:"name,omitempty"`
	Age  *int    `json:"age,omitempty"`
}

func (u UserUpdate) Empty() bool { return u.Name == nil && u.Age == nil }

// Fields returns the set fields keyed by their stored name.
func (u UserUpdate) Fields() map[string]any {
	out := make(map[string]any, 2)
	if u.Name != nil {
		out["name"] = *u.Name
	}
	if u.Age != nil {
		out["age"] = *u.Age
	}
	return out
}
