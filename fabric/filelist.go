package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sievedb/sieve/core"
	"github.com/sievedb/sieve/metrics"
)

// Staged file lists are the fabric's answer to listing by URL prefix: once a
// session's files are staged under {scheme}:///{session}/schema={key}/, the
// provider addresses them without carrying an explicit list around.
type stagedList struct {
	files    []core.SegmentFileKey
	store    ObjectStore
	manifest string
}

var (
	fileListMu sync.RWMutex
	fileLists  = make(map[string]stagedList)
)

func fileListKey(sessionID, schemaKey string) string {
	return sessionID + "/schema=" + schemaKey
}

// Stage records a session's file list for one schema bucket and writes a
// manifest object into the backing store so the prefix is addressable.
// Staging must complete before any listing against the prefix; failure is
// fatal to the enclosing table registration.
func Stage(ctx context.Context, reg *Registry, st core.StorageType, sessionID, schemaKey string, files []core.SegmentFileKey) error {
	store, err := reg.ResolveKind(st)
	if err != nil {
		return err
	}
	manifest, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode file list manifest: %w", err)
	}
	p := fmt.Sprintf("%s/schema=%s/.filelist", sessionID, schemaKey)
	if err := store.Put(ctx, p, manifest); err != nil {
		return fmt.Errorf("stage file list %s: %w", p, err)
	}

	fileListMu.Lock()
	fileLists[fileListKey(sessionID, schemaKey)] = stagedList{
		files:    files,
		store:    store,
		manifest: p,
	}
	fileListMu.Unlock()

	metrics.StagedFilesTotal.Add(float64(len(files)))
	return nil
}

// Staged returns the file list previously staged for one schema bucket.
func Staged(sessionID, schemaKey string) []core.SegmentFileKey {
	fileListMu.RLock()
	defer fileListMu.RUnlock()
	return fileLists[fileListKey(sessionID, schemaKey)].files
}

// ClearSession drops every staged list of a session, including the manifest
// objects written into the backing stores. Called when the owning execution
// context is torn down; manifest deletion is best-effort.
func ClearSession(ctx context.Context, sessionID string) {
	fileListMu.Lock()
	var dropped []stagedList
	for k, e := range fileLists {
		if len(k) > len(sessionID) && k[:len(sessionID)] == sessionID && k[len(sessionID)] == '/' {
			dropped = append(dropped, e)
			delete(fileLists, k)
		}
	}
	fileListMu.Unlock()

	for _, e := range dropped {
		if e.store == nil {
			continue
		}
		if err := e.store.Delete(ctx, e.manifest); err != nil {
			core.Warnf(ctx, "delete staged manifest %s: %v", e.manifest, err)
		}
	}
}
