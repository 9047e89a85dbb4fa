package dbpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrPoolClosed = errors.New("connection pool closed")

// ConnectionError means the store could not be reached while establishing
// the pool. It is fatal at startup.
type ConnectionError struct {
	Backend string
	Target  string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connect %s: %v", e.Backend, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PoolTimeoutError means no pooled connection became available within the
// selection timeout.
type PoolTimeoutError struct {
	Backend string
	Timeout time.Duration
	Err     error
}

func (e *PoolTimeoutError) Error() string {
	return fmt.Sprintf("%s: no connection available within %s: %v", e.Backend, e.Timeout, e.Err)
}

func (e *PoolTimeoutError) Unwrap() error { return e.Err }

// Classify turns driver-specific connection acquisition timeouts into a
// *PoolTimeoutError. Other errors are returned as is.
func Classify(backend string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var pt *PoolTimeoutError
	if errors.As(err, &pt) {
		return err
	}
	switch {
	case errors.Is(err, redis.ErrPoolTimeout),
		mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded):
		return &PoolTimeoutError{Backend: backend, Timeout: timeout, Err: err}
	}
	return err
}
