package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeRangeOverlaps(t *testing.T) {
	r := TimeRange{Start: 100, End: 200}

	tests := []struct {
		name     string
		min, max int64
		want     bool
	}{
		{"inside", 120, 180, true},
		{"straddles start", 50, 150, true},
		{"straddles end", 150, 250, true},
		{"covers", 50, 250, true},
		{"touches start", 50, 100, true},
		{"touches end", 200, 300, true},
		{"before", 10, 99, false},
		{"after", 201, 300, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Overlaps(tt.min, tt.max))
		})
	}
}

func TestStorageTypeString(t *testing.T) {
	assert.Equal(t, "memory", StorageMemory.String())
	assert.Equal(t, "wal", StorageWal.String())
	assert.Equal(t, "tmpfs", StorageTmpfs.String())
	assert.Equal(t, "remote", StorageRemote.String())
	assert.Equal(t, "unknown", StorageType(99).String())
}

func TestNewSession(t *testing.T) {
	a := NewSession(StorageWal, "long", 4)
	b := NewSession(StorageWal, "long", 4)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, StorageWal, a.StorageType)
	assert.Equal(t, "long", a.WorkGroup)
	assert.Equal(t, 4, a.TargetPartitions)
}
