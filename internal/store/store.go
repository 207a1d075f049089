// Package store is the spatial-relational access layer for drought
// datasets: a dataset registry, a feature table with geometry envelopes,
// and one wide time-series table per dataset (ts_<key>) created at import
// time from the source file's header.
//
// All reads go through validated identifiers: dataset keys are resolved
// case-insensitively against the registry and index names are checked
// against the actual columns of the dataset's series table before they are
// ever interpolated into SQL.
package store

import (
	"database/sql"
	"sync"
)

// Cache bounds for the per-process lookup caches. Entries are append-only
// and never expire; the registry and table schemas only change at import
// time, so stale entries are harmless and a restart clears them.
const (
	keyCacheMax   = 256
	indexCacheMax = 128
)

type Store struct {
	db *sql.DB

	mu       sync.Mutex
	keyCache map[string]string   // canonical key -> stored dataset_key
	idxCache map[string][]string // canonical key -> series table columns
}

func New(db *sql.DB) *Store {
	return &Store{
		db:       db,
		keyCache: make(map[string]string),
		idxCache: make(map[string][]string),
	}
}

// InvalidateLookupCaches drops the resolved-key and column caches. The
// import pipeline calls this after changing schema objects in-process;
// other processes rely on restart.
func (s *Store) InvalidateLookupCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyCache = make(map[string]string)
	s.idxCache = make(map[string][]string)
}

func (s *Store) cachedKey(canon string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.keyCache[canon]
	return v, ok
}

func (s *Store) storeKey(canon, stored string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keyCache) >= keyCacheMax {
		return
	}
	s.keyCache[canon] = stored
}

func (s *Store) cachedIndices(canon string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.idxCache[canon]
	return v, ok
}

func (s *Store) storeIndices(canon string, cols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.idxCache) >= indexCacheMax {
		return
	}
	s.idxCache[canon] = cols
}
