package fabric

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// WalStore is the write-ahead staging backend, rooted at the node's WAL
// directory. Its objects are real files, so the engine scans them in place.
type WalStore struct {
	fs   afero.Fs
	root string
}

func NewWalStore(root string) *WalStore {
	return &WalStore{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), root),
		root: root,
	}
}

func (s *WalStore) Scheme() string { return SchemeWal }

func (s *WalStore) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	return s.fs.Open(clean(p))
}

func (s *WalStore) Put(ctx context.Context, p string, data []byte) error {
	p = clean(p)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

func (s *WalStore) Delete(ctx context.Context, p string) error {
	return s.fs.Remove(clean(p))
}

func (s *WalStore) List(ctx context.Context, prefix string) ([]string, error) {
	return listFs(s.fs, clean(prefix))
}

func (s *WalStore) Local(p string) (string, bool) {
	abs := filepath.Join(s.root, clean(p))
	if _, err := os.Stat(abs); err != nil {
		return "", false
	}
	return abs, true
}

// TmpfsStore is the scratch backend. Files are expected already resident
// when a table is registered, so registration never stages into it.
type TmpfsStore struct {
	fs   afero.Fs
	root string
}

func NewTmpfsStore(root string) *TmpfsStore {
	return &TmpfsStore{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), root),
		root: root,
	}
}

func (s *TmpfsStore) Scheme() string { return SchemeTmpfs }

func (s *TmpfsStore) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	return s.fs.Open(clean(p))
}

func (s *TmpfsStore) Put(ctx context.Context, p string, data []byte) error {
	p = clean(p)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

func (s *TmpfsStore) Delete(ctx context.Context, p string) error {
	return s.fs.Remove(clean(p))
}

func (s *TmpfsStore) List(ctx context.Context, prefix string) ([]string, error) {
	return listFs(s.fs, clean(prefix))
}

func (s *TmpfsStore) Local(p string) (string, bool) {
	abs := filepath.Join(s.root, clean(p))
	if _, err := os.Stat(abs); err != nil {
		return "", false
	}
	return abs, true
}
