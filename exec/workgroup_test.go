package exec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievedb/sieve/config"
	"github.com/sievedb/sieve/core"
)

func withConfig(t *testing.T, mutate func(*config.Settings)) {
	t.Helper()
	prev := *config.Config
	mutate(config.Config)
	t.Cleanup(func() { *config.Config = prev })
}

func TestParseWorkGroup(t *testing.T) {
	for _, name := range []string{"short", "long", "background"} {
		wg, ok := ParseWorkGroup(name)
		assert.True(t, ok, name)
		assert.Equal(t, WorkGroup(name), wg)
	}
	_, ok := ParseWorkGroup("interactive")
	assert.False(t, ok)
}

func TestApplyWorkGroupLimitsScalesBoth(t *testing.T) {
	withConfig(t, func(c *config.Settings) {
		c.CPULimitEnabled = true
		c.WorkGroups = map[string]config.Allowance{
			"long": {CPUPercent: 50, MemPercent: 80},
		}
	})

	parts, mem, err := ApplyWorkGroupLimits(context.Background(), "long", 8, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, parts)
	assert.Equal(t, int64(800), mem)
}

func TestApplyWorkGroupLimitsMemoryOnlyWhenCPULimitOff(t *testing.T) {
	withConfig(t, func(c *config.Settings) {
		c.CPULimitEnabled = false
		c.WorkGroups = map[string]config.Allowance{
			"long": {CPUPercent: 50, MemPercent: 80},
		}
	})

	parts, mem, err := ApplyWorkGroupLimits(context.Background(), "long", 8, 1000)
	require.NoError(t, err)
	assert.Equal(t, 8, parts)
	assert.Equal(t, int64(800), mem)
}

func TestApplyWorkGroupLimitsPassThrough(t *testing.T) {
	withConfig(t, func(c *config.Settings) {
		c.CPULimitEnabled = true
		c.WorkGroups = map[string]config.Allowance{}
	})

	// Empty name and unknown class names leave the limits untouched.
	for _, name := range []string{"", "interactive"} {
		parts, mem, err := ApplyWorkGroupLimits(context.Background(), name, 8, 1000)
		require.NoError(t, err)
		assert.Equal(t, 8, parts, "name %q", name)
		assert.Equal(t, int64(1000), mem, "name %q", name)
	}

	// A known class absent from the allowance table gets the full node.
	parts, mem, err := ApplyWorkGroupLimits(context.Background(), "short", 8, 1000)
	require.NoError(t, err)
	assert.Equal(t, 8, parts)
	assert.Equal(t, int64(1000), mem)
}

func TestApplyWorkGroupLimitsRejectsBadAllowance(t *testing.T) {
	withConfig(t, func(c *config.Settings) {
		c.WorkGroups = map[string]config.Allowance{
			"short": {CPUPercent: 0, MemPercent: 120},
		}
	})

	_, _, err := ApplyWorkGroupLimits(context.Background(), "short", 8, 1000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrResourceResolution))
}

type failingResolver struct{}

func (failingResolver) DynamicResource(context.Context, WorkGroup) (Allowance, error) {
	return Allowance{}, errors.New("controller unreachable")
}

func TestApplyWorkGroupLimitsResolverFailure(t *testing.T) {
	SetResolver(failingResolver{})
	t.Cleanup(func() { SetResolver(ConfigResolver{}) })

	_, _, err := ApplyWorkGroupLimits(context.Background(), "background", 4, 500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrResourceResolution))
}

func TestNoopResolver(t *testing.T) {
	a, err := NoopResolver{}.DynamicResource(context.Background(), WorkGroupShort)
	require.NoError(t, err)
	assert.Equal(t, Allowance{CPUPercent: 100, MemPercent: 100}, a)
}
