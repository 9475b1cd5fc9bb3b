package exec

import (
	"fmt"
	"sync"

	"github.com/sievedb/sieve/core"
)

// PoolStrategy selects the per-context memory admission control.
type PoolStrategy int

const (
	// PoolNone applies no admission control.
	PoolNone PoolStrategy = iota
	// PoolGreedy enforces a strict ceiling and rejects above it.
	PoolGreedy
	// PoolFair allows temporary overcommit with cooperative spill.
	PoolFair
)

// ParsePoolStrategy parses the configured strategy name.
func ParsePoolStrategy(s string) (PoolStrategy, error) {
	switch s {
	case "none", "off":
		return PoolNone, nil
	case "greedy", "":
		return PoolGreedy, nil
	case "fair", "fair_spill":
		return PoolFair, nil
	default:
		return 0, fmt.Errorf("%w: unknown memory pool strategy %q", core.ErrInvalidConfig, s)
	}
}

// MemoryPool admission-controls one execution context's memory. Exactly one
// strategy is active per context.
type MemoryPool interface {
	Reserve(n int64) error
	Release(n int64)
	Used() int64
	Limit() int64
}

// Spillable is a consumer able to shed memory on request. Fair pools call
// Spill on registered consumers before admitting an overcommitting
// reservation.
type Spillable interface {
	Spill() int64
}

// NewMemoryPool builds the pool for a strategy and ceiling.
func NewMemoryPool(strategy PoolStrategy, limit int64) MemoryPool {
	switch strategy {
	case PoolGreedy:
		return &greedyPool{limit: limit}
	case PoolFair:
		return &fairSpillPool{limit: limit}
	default:
		return unboundedPool{}
	}
}

type unboundedPool struct{}

func (unboundedPool) Reserve(int64) error { return nil }
func (unboundedPool) Release(int64)       {}
func (unboundedPool) Used() int64         { return 0 }
func (unboundedPool) Limit() int64        { return 0 }

// greedyPool hard-rejects any reservation that would cross the ceiling.
type greedyPool struct {
	mu    sync.Mutex
	limit int64
	used  int64
}

func (p *greedyPool) Reserve(n int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used+n > p.limit {
		return fmt.Errorf("%w: reserve %d bytes over ceiling %d (used %d)",
			core.ErrResourcesExhausted, n, p.limit, p.used)
	}
	p.used += n
	return nil
}

func (p *greedyPool) Release(n int64) {
	p.mu.Lock()
	p.used -= n
	if p.used < 0 {
		p.used = 0
	}
	p.mu.Unlock()
}

func (p *greedyPool) Used() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

func (p *greedyPool) Limit() int64 { return p.limit }

// fairSpillPool admits overcommit after asking registered consumers to
// spill. A reservation never fails; concurrently running operations inside
// the context cooperate by shedding what they can.
type fairSpillPool struct {
	mu       sync.Mutex
	limit    int64
	used     int64
	spillers []Spillable
}

// RegisterSpiller adds a consumer to the reclamation set.
func (p *fairSpillPool) RegisterSpiller(s Spillable) {
	p.mu.Lock()
	p.spillers = append(p.spillers, s)
	p.mu.Unlock()
}

func (p *fairSpillPool) Reserve(n int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used+n > p.limit {
		for _, s := range p.spillers {
			freed := s.Spill()
			p.used -= freed
			if p.used < 0 {
				p.used = 0
			}
			if p.used+n <= p.limit {
				break
			}
		}
	}
	p.used += n
	return nil
}

func (p *fairSpillPool) Release(n int64) {
	p.mu.Lock()
	p.used -= n
	if p.used < 0 {
		p.used = 0
	}
	p.mu.Unlock()
}

func (p *fairSpillPool) Used() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

func (p *fairSpillPool) Limit() int64 { return p.limit }
