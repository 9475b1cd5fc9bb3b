package fabric

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sievedb/sieve/metrics"
)

// FileStatistics is the cached per-file summary consulted before a scan.
type FileStatistics struct {
	Records int64
	MinTS   int64
	MaxTS   int64
	Size    int64
}

// StatsCache is a bounded cache of file statistics keyed by file path. One
// instance is shared process-wide across execution contexts; the LRU applies
// its own locking.
type StatsCache struct {
	c *lru.Cache[string, FileStatistics]
}

var (
	globalStatsOnce sync.Once
	globalStats     *StatsCache
)

// GlobalStatsCache returns the shared cache, sized on first use. A capacity
// of zero or less disables caching and returns nil.
func GlobalStatsCache(capacity int) *StatsCache {
	if capacity <= 0 {
		return nil
	}
	globalStatsOnce.Do(func() {
		c, err := lru.New[string, FileStatistics](capacity)
		if err != nil {
			return
		}
		globalStats = &StatsCache{c: c}
	})
	return globalStats
}

// NewStatsCache builds an unshared cache. Used by tests.
func NewStatsCache(capacity int) (*StatsCache, error) {
	c, err := lru.New[string, FileStatistics](capacity)
	if err != nil {
		return nil, err
	}
	return &StatsCache{c: c}, nil
}

func (s *StatsCache) Get(path string) (FileStatistics, bool) {
	st, ok := s.c.Get(path)
	if ok {
		metrics.FileStatCacheHits.Inc()
	} else {
		metrics.FileStatCacheMisses.Inc()
	}
	return st, ok
}

func (s *StatsCache) Put(path string, st FileStatistics) {
	s.c.Add(path, st)
}

func (s *StatsCache) Len() int {
	return s.c.Len()
}
