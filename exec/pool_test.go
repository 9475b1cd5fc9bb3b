package exec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievedb/sieve/core"
)

func TestParsePoolStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want PoolStrategy
	}{
		{"", PoolGreedy},
		{"greedy", PoolGreedy},
		{"none", PoolNone},
		{"off", PoolNone},
		{"fair", PoolFair},
		{"fair_spill", PoolFair},
	}
	for _, tt := range tests {
		got, err := ParsePoolStrategy(tt.in)
		require.NoError(t, err, "strategy %q", tt.in)
		assert.Equal(t, tt.want, got, "strategy %q", tt.in)
	}

	_, err := ParsePoolStrategy("bogus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestGreedyPoolRejectsOverCeiling(t *testing.T) {
	p := NewMemoryPool(PoolGreedy, 100)

	require.NoError(t, p.Reserve(60))
	require.NoError(t, p.Reserve(40))
	assert.Equal(t, int64(100), p.Used())

	err := p.Reserve(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrResourcesExhausted))
	assert.Equal(t, int64(100), p.Used())

	p.Release(50)
	require.NoError(t, p.Reserve(30))
	assert.Equal(t, int64(80), p.Used())
}

func TestGreedyPoolReleaseClampsAtZero(t *testing.T) {
	p := NewMemoryPool(PoolGreedy, 100)
	p.Release(10)
	assert.Equal(t, int64(0), p.Used())
}

type fixedSpiller struct {
	free   int64
	called int
}

func (s *fixedSpiller) Spill() int64 {
	s.called++
	return s.free
}

func TestFairPoolSpillsThenAdmits(t *testing.T) {
	p := NewMemoryPool(PoolFair, 100).(*fairSpillPool)
	sp := &fixedSpiller{free: 70}
	p.RegisterSpiller(sp)

	require.NoError(t, p.Reserve(90))
	assert.Equal(t, 0, sp.called)

	// Over the ceiling: the pool reclaims from the spiller first.
	require.NoError(t, p.Reserve(50))
	assert.Equal(t, 1, sp.called)
	assert.Equal(t, int64(70), p.Used())
}

func TestFairPoolAdmitsEvenWhenSpillFallsShort(t *testing.T) {
	p := NewMemoryPool(PoolFair, 100).(*fairSpillPool)
	p.RegisterSpiller(&fixedSpiller{free: 0})

	require.NoError(t, p.Reserve(90))
	require.NoError(t, p.Reserve(90))
	assert.Equal(t, int64(180), p.Used())
}

func TestUnboundedPool(t *testing.T) {
	p := NewMemoryPool(PoolNone, 0)
	require.NoError(t, p.Reserve(1 << 40))
	assert.Equal(t, int64(0), p.Used())
	assert.Equal(t, int64(0), p.Limit())
}
