package fabric

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

const (
	SchemeMemory = "memory"
	SchemeWal    = "wal"
	SchemeTmpfs  = "tmpfs"
	SchemeS3     = "s3"
)

// The ephemeral cache tier is one process-global in-memory filesystem so
// every context sees the same cached segment bytes.
var (
	memFsOnce sync.Once
	memFs     afero.Fs
)

func sharedMemFs() afero.Fs {
	memFsOnce.Do(func() {
		memFs = afero.NewMemMapFs()
	})
	return memFs
}

// MemoryStore is the ephemeral shared cache backend.
type MemoryStore struct {
	fs afero.Fs
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fs: sharedMemFs()}
}

func (s *MemoryStore) Scheme() string { return SchemeMemory }

func (s *MemoryStore) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	return s.fs.Open(clean(p))
}

func (s *MemoryStore) Put(ctx context.Context, p string, data []byte) error {
	p = clean(p)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

func (s *MemoryStore) Delete(ctx context.Context, p string) error {
	return s.fs.Remove(clean(p))
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	return listFs(s.fs, clean(prefix))
}

// Local always declines: memory-tier bytes have no on-disk path and are
// materialized into scratch before a scan.
func (s *MemoryStore) Local(string) (string, bool) { return "", false }

func clean(p string) string {
	return strings.TrimPrefix(p, "/")
}

func listFs(fs afero.Fs, prefix string) ([]string, error) {
	var out []string
	err := afero.Walk(fs, prefix, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
