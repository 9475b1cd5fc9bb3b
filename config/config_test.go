package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := defaults()
	assert.Equal(t, "greedy", d.MemoryPool)
	assert.Equal(t, int64(2<<30), d.MemoryLimitBytes)
	assert.Equal(t, "_timestamp", d.TimestampColumn)
	assert.NotNil(t, d.WorkGroups)
}

func TestEffectiveWorkers(t *testing.T) {
	s := &Settings{Workers: 6}
	assert.Equal(t, 6, s.EffectiveWorkers())

	s.Workers = 0
	assert.Greater(t, s.EffectiveWorkers(), 0)
}

func TestInitConfigFromFile(t *testing.T) {
	prev := Config
	t.Cleanup(func() { Config = prev })

	path := filepath.Join(t.TempDir(), "sieve.yaml")
	content := `
workers: 4
memory_pool: fair
timestamp_column: ts
cpu_limit_enabled: true
workgroups:
  long:
    cpu: 50
    mem: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, InitConfig(path))

	assert.Equal(t, 4, Config.Workers)
	assert.Equal(t, "fair", Config.MemoryPool)
	assert.Equal(t, "ts", Config.TimestampColumn)
	assert.True(t, Config.CPULimitEnabled)
	require.Contains(t, Config.WorkGroups, "long")
	assert.Equal(t, 50, Config.WorkGroups["long"].CPUPercent)
	assert.Equal(t, 80, Config.WorkGroups["long"].MemPercent)
}

func TestInitConfigMissingFile(t *testing.T) {
	prev := Config
	t.Cleanup(func() { Config = prev })

	err := InitConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestInitConfigDefaultsWithoutFile(t *testing.T) {
	prev := Config
	t.Cleanup(func() { Config = prev })

	require.NoError(t, InitConfig(""))
	assert.Equal(t, "greedy", Config.MemoryPool)
	assert.Equal(t, "_timestamp", Config.TimestampColumn)
}
