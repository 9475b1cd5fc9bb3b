package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Allowance is the live resource share of one workgroup, in percent of the
// node's nominal capacity. Both values must sit in (0, 100].
type Allowance struct {
	CPUPercent int `mapstructure:"cpu"`
	MemPercent int `mapstructure:"mem"`
}

// Settings holds the recognized configuration surface of the execution
// fabric. A single snapshot is loaded at process start; request handling
// never re-reads it.
type Settings struct {
	// Workers is the default worker parallelism used when a caller does not
	// request an explicit partition count. Zero means runtime.NumCPU().
	Workers int `mapstructure:"workers"`
	// MinPartitions is the lower clamp applied to caller-requested
	// partition counts.
	MinPartitions int `mapstructure:"min_partitions"`

	// MemoryPool selects the admission-control strategy: none, greedy
	// (strict ceiling) or fair (cooperative spill).
	MemoryPool string `mapstructure:"memory_pool"`
	// MemoryLimitBytes is the nominal per-context memory ceiling before
	// workgroup scaling and the 256 MiB floor are applied.
	MemoryLimitBytes int64 `mapstructure:"memory_limit_bytes"`

	BloomFilterEnabled          bool `mapstructure:"bloom_filter_enabled"`
	BloomFilterDisabledOnSearch bool `mapstructure:"bloom_filter_disabled_on_search"`

	FileStatCacheMaxEntries int  `mapstructure:"file_stat_cache_max_entries"`
	DistinctValuesHourly    bool `mapstructure:"distinct_values_hourly"`
	FeatureJoinMatchOne     bool `mapstructure:"feature_join_match_one"`
	CPULimitEnabled         bool `mapstructure:"cpu_limit_enabled"`

	// TimestampColumn is the canonical time column of every stream.
	TimestampColumn string `mapstructure:"timestamp_column"`

	WalDir string `mapstructure:"wal_dir"`
	TmpDir string `mapstructure:"tmp_dir"`

	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`

	// WorkGroups maps workgroup class names to their configured allowance.
	// The live resource controller keeps this table current.
	WorkGroups map[string]Allowance `mapstructure:"workgroups"`
}

// Config is the process-wide configuration snapshot. InitConfig must be
// called before any execution context is built.
var Config = defaults()

func defaults() *Settings {
	return &Settings{
		Workers:          0,
		MinPartitions:    0,
		MemoryPool:       "greedy",
		MemoryLimitBytes: 2 << 30,
		TimestampColumn:  "_timestamp",
		WalDir:           "./data/wal",
		TmpDir:           filepath.Join(os.TempDir(), "sieve"),
		WorkGroups:       map[string]Allowance{},
	}
}

// InitConfig loads configuration from the given file (optional) and from
// SIEVE_* environment variables.
func InitConfig(path string) error {
	v := viper.New()
	v.SetEnvPrefix("SIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaults()
	v.SetDefault("workers", def.Workers)
	v.SetDefault("min_partitions", def.MinPartitions)
	v.SetDefault("memory_pool", def.MemoryPool)
	v.SetDefault("memory_limit_bytes", def.MemoryLimitBytes)
	v.SetDefault("timestamp_column", def.TimestampColumn)
	v.SetDefault("wal_dir", def.WalDir)
	v.SetDefault("tmp_dir", def.TmpDir)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.WorkGroups == nil {
		cfg.WorkGroups = map[string]Allowance{}
	}
	Config = cfg
	return nil
}

// EffectiveWorkers resolves the default worker parallelism.
func (s *Settings) EffectiveWorkers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}
