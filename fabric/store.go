package fabric

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/sievedb/sieve/core"
)

// ObjectStore is the common contract of every storage backend. Each variant
// implements the same get/list/put surface; dispatch is by URL scheme.
type ObjectStore interface {
	Scheme() string
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Put(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	// Local returns the backing filesystem path of an object when the
	// backend is directly readable by the engine, else ok=false and the
	// caller materializes through Get.
	Local(path string) (string, bool)
}

// Registry maps URL schemes to backend instances. Stores are stateless
// routers; per-request data is namespaced by session id, so a registry may
// be shared or rebuilt per context interchangeably.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]ObjectStore
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]ObjectStore)}
}

// Register installs a backend for its scheme. Idempotent: re-registering a
// scheme replaces the previous instance.
func (r *Registry) Register(s ObjectStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.Scheme()] = s
}

// Resolve returns the backend for a storage URL.
func (r *Registry) Resolve(rawURL string) (ObjectStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse storage url %q: %w", rawURL, err)
	}
	r.mu.RLock()
	s, ok := r.stores[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", core.ErrUnsupportedBackend, u.Scheme)
	}
	return s, nil
}

// ResolveKind returns the backend registered for a session storage kind.
func (r *Registry) ResolveKind(st core.StorageType) (ObjectStore, error) {
	scheme, err := SchemeFor(st)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	s, ok := r.stores[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q not registered", core.ErrUnsupportedBackend, scheme)
	}
	return s, nil
}

// SchemeFor maps a storage kind to its URL scheme.
func SchemeFor(st core.StorageType) (string, error) {
	switch st {
	case core.StorageMemory:
		return SchemeMemory, nil
	case core.StorageWal:
		return SchemeWal, nil
	case core.StorageTmpfs:
		return SchemeTmpfs, nil
	case core.StorageRemote:
		return SchemeS3, nil
	default:
		return "", fmt.Errorf("%w: storage type %d", core.ErrUnsupportedBackend, st)
	}
}

// Prefix builds the deterministic listing URL of one (session, schema key)
// bucket. The scratch tier is addressed by session only.
func Prefix(st core.StorageType, sessionID, schemaKey string) (string, error) {
	switch st {
	case core.StorageMemory:
		return fmt.Sprintf("%s:///%s/schema=%s/", SchemeMemory, sessionID, schemaKey), nil
	case core.StorageWal:
		return fmt.Sprintf("%s:///%s/schema=%s/", SchemeWal, sessionID, schemaKey), nil
	case core.StorageTmpfs:
		return fmt.Sprintf("%s:///%s/", SchemeTmpfs, sessionID), nil
	default:
		return "", fmt.Errorf("%w: storage type %q", core.ErrUnsupportedBackend, st)
	}
}
