package core

import "github.com/google/uuid"

// StreamType identifies the semantics of a stream's segment files.
type StreamType string

const (
	StreamLogs     StreamType = "logs"
	StreamMetrics  StreamType = "metrics"
	StreamTraces   StreamType = "traces"
	StreamMetadata StreamType = "metadata"
	StreamIndex    StreamType = "index"
)

// DistinctStreamPrefix marks metadata streams holding hourly distinct-value
// observations; their compaction collapses duplicates per group.
const DistinctStreamPrefix = "distinct_values_"

// FileMeta summarizes one segment file's contents.
type FileMeta struct {
	MinTS          int64 `json:"min_ts"`
	MaxTS          int64 `json:"max_ts"`
	Records        int64 `json:"records"`
	OriginalSize   int64 `json:"original_size"`
	CompressedSize int64 `json:"compressed_size"`
}

// SegmentFileKey identifies one immutable columnar segment file. Produced by
// ingestion or a prior compaction, consumed by table registration, retired
// by a later compaction pass.
type SegmentFileKey struct {
	// Path is the logical path of the file inside its storage backend.
	Path string `json:"path"`
	Meta FileMeta `json:"meta"`
	// Deleted marks index-stream tombstones.
	Deleted bool `json:"deleted"`
	// SchemaKey is the fingerprint of the schema the file was written
	// with. Files sharing a key are interchangeable.
	SchemaKey string `json:"schema_key,omitempty"`
}

// TimeRange is a closed interval of timestamps in nanoseconds.
type TimeRange struct {
	Start int64
	End   int64
}

// Overlaps reports whether [min, max] intersects the range.
func (r TimeRange) Overlaps(min, max int64) bool {
	return max >= r.Start && min <= r.End
}

// StorageType names the storage tier a session's segment files live in.
type StorageType int

const (
	// StorageMemory is the ephemeral shared cache tier.
	StorageMemory StorageType = iota
	// StorageWal is the write-ahead staging tier.
	StorageWal
	// StorageTmpfs is the scratch tier; its files are single-use and
	// already resident when a table is registered.
	StorageTmpfs
	// StorageRemote is the durable object store.
	StorageRemote
)

func (t StorageType) String() string {
	switch t {
	case StorageMemory:
		return "memory"
	case StorageWal:
		return "wal"
	case StorageTmpfs:
		return "tmpfs"
	case StorageRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Session is the per-request handle threaded through table registration.
type Session struct {
	ID          string
	StorageType StorageType
	// WorkGroup is the multi-tenant resource class, empty when unset.
	WorkGroup        string
	TargetPartitions int
}

// NewSession creates a session with a fresh unique id.
func NewSession(storage StorageType, workGroup string, targetPartitions int) *Session {
	return &Session{
		ID:               uuid.NewString(),
		StorageType:      storage,
		WorkGroup:        workGroup,
		TargetPartitions: targetPartitions,
	}
}
