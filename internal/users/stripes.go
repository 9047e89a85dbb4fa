package users

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 64

// Stripes serializes work per key using a fixed set of mutexes. Two keys
// may share a stripe; the same key always maps to the same one.
type Stripes struct {
	locks []sync.Mutex
}

func NewStripes(n int) *Stripes {
	if n <= 0 {
		n = defaultStripes
	}
	return &Stripes{locks: make([]sync.Mutex, n)}
}

func (s *Stripes) lockFor(key string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key)%uint64(len(s.locks))]
}

// With runs fn holding key's stripe. A nil receiver runs fn unlocked.
func (s *Stripes) With(key string, fn func() error) error {
	if s == nil {
		return fn()
	}
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
