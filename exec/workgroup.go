package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/sievedb/sieve/config"
	"github.com/sievedb/sieve/core"
)

// WorkGroup is a multi-tenant resource class.
type WorkGroup string

const (
	WorkGroupShort      WorkGroup = "short"
	WorkGroupLong       WorkGroup = "long"
	WorkGroupBackground WorkGroup = "background"
)

// ParseWorkGroup maps a name onto a known class. An unknown name is not an
// error; callers pass nominal limits through unchanged.
func ParseWorkGroup(name string) (WorkGroup, bool) {
	switch WorkGroup(name) {
	case WorkGroupShort, WorkGroupLong, WorkGroupBackground:
		return WorkGroup(name), true
	default:
		return "", false
	}
}

// Allowance is one workgroup's live resource share.
type Allowance struct {
	CPUPercent int
	MemPercent int
}

// Resolver fetches the live allowance of a workgroup. Deployments without
// multi-tenancy inject NoopResolver; lookups stay idempotent within one
// request and are never cached across requests.
type Resolver interface {
	DynamicResource(ctx context.Context, wg WorkGroup) (Allowance, error)
}

// NoopResolver grants the full node to every workgroup.
type NoopResolver struct{}

func (NoopResolver) DynamicResource(context.Context, WorkGroup) (Allowance, error) {
	return Allowance{CPUPercent: 100, MemPercent: 100}, nil
}

// ConfigResolver reads the allowance table kept current by the resource
// controller through shared configuration.
type ConfigResolver struct{}

func (ConfigResolver) DynamicResource(_ context.Context, wg WorkGroup) (Allowance, error) {
	a, ok := config.Config.WorkGroups[string(wg)]
	if !ok {
		return Allowance{CPUPercent: 100, MemPercent: 100}, nil
	}
	if a.CPUPercent <= 0 || a.CPUPercent > 100 || a.MemPercent <= 0 || a.MemPercent > 100 {
		return Allowance{}, fmt.Errorf("workgroup %s allowance out of range: cpu=%d mem=%d",
			wg, a.CPUPercent, a.MemPercent)
	}
	return Allowance{CPUPercent: a.CPUPercent, MemPercent: a.MemPercent}, nil
}

var (
	resolverMu sync.RWMutex
	resolver   Resolver = ConfigResolver{}
)

// SetResolver swaps the workgroup resolver. Meant for enterprise wiring and
// tests.
func SetResolver(r Resolver) {
	resolverMu.Lock()
	resolver = r
	resolverMu.Unlock()
}

func currentResolver() Resolver {
	resolverMu.RLock()
	defer resolverMu.RUnlock()
	return resolver
}

// ApplyWorkGroupLimits scales the nominal (partitions, memory) pair by the
// workgroup's live allowance. Memory is always scaled; partitions only when
// CPU limiting is enabled, so an operator can cap memory sharing without
// touching parallelism. Absent or unknown workgroup names pass through; a
// resolver backend failure aborts context construction.
func ApplyWorkGroupLimits(ctx context.Context, name string, partitions int, memory int64) (int, int64, error) {
	if name == "" {
		return partitions, memory, nil
	}
	wg, ok := ParseWorkGroup(name)
	if !ok {
		return partitions, memory, nil
	}
	a, err := currentResolver().DynamicResource(ctx, wg)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", core.ErrResourceResolution, wg, err)
	}
	if config.Config.CPULimitEnabled {
		partitions = partitions * a.CPUPercent / 100
	}
	memory = memory * int64(a.MemPercent) / 100
	core.Debugf(ctx, "workgroup %s: target_partitions=%d memory_size=%d", wg, partitions, memory)
	return partitions, memory, nil
}
