package dbpool

import (
	"context"
	"sync/atomic"
)

type State int32

const (
	StateWarming State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWarming:
		return "warming"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type lifecycle struct{ v atomic.Int32 }

func (l *lifecycle) State() State { return State(l.v.Load()) }
func (l *lifecycle) set(s State) { l.v.Store(int32(s)) }
func (l *lifecycle) closing() bool { return State(l.v.Swap(int32(StateClosed))) == StateClosed }
func (l *lifecycle) isClosed() bool { return l.State() == StateClosed }

// Stats is a backend-neutral snapshot of a connection pool.
type Stats struct {
	Backend   string `json:"backend"`
	State     string `json:"state"`
	Open      int    `json:"open"`
	InUse     int    `json:"in_use"`
	Idle      int    `json:"idle"`
	WaitCount int64  `json:"wait_count"`
}

// Pool is what the rest of the process needs from any pooled client.
type Pool interface {
	State() State
	Stats() Stats
	// Warm tops the pool back up to its minimum warm connections.
	Warm(ctx context.Context) error
	Close(ctx context.Context) error
}
