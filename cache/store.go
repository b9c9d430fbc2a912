package cache

import (
	"sync"

	"github.com/dailyyoga/secretcache/logger"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

// store is the bounded id -> entry mapping. Every operation runs under one
// mutex, so lookups, insertions and evictions share a single access order.
type store struct {
	log      logger.Logger
	cfg      *Config
	recorder Recorder

	mu      sync.Mutex
	entries *simplelru.LRU[string, *entry]
}

func newStore(log logger.Logger, cfg *Config, recorder Recorder) (*store, error) {
	s := &store{
		log:      log,
		cfg:      cfg,
		recorder: recorder,
	}
	entries, err := simplelru.NewLRU[string, *entry](cfg.MaxCacheSize, nil)
	if err != nil {
		return nil, ErrInvalidMaxCacheSize(cfg.MaxCacheSize)
	}
	s.entries = entries
	return s, nil
}

// getOrCreate returns the entry for id and marks it most recently accessed.
// A missing or deleted entry is replaced by a new one; when the store is full
// the least recently accessed entry is evicted before the insert.
func (s *store) getOrCreate(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries.Get(id); ok {
		if !e.isDeleted() {
			return e
		}
		s.entries.Remove(id)
	}

	if s.entries.Len() >= s.cfg.MaxCacheSize {
		if evicted, _, ok := s.entries.RemoveOldest(); ok {
			s.recorder.Eviction()
			s.log.Debug("secret evicted", zap.String("secret_id", evicted))
		}
	}
	e := newEntry(id, s.cfg)
	s.entries.Add(id, e)
	return e
}

// remove deletes id only while it still maps to e, so an entry created
// concurrently for the same id is kept.
func (s *store) remove(id string, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries.Peek(id); ok && cur == e {
		return s.entries.Remove(id)
	}
	return false
}

// removeID deletes id unconditionally
func (s *store) removeID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Remove(id)
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

// keys returns the ids from least to most recently accessed
func (s *store) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Keys()
}

func (s *store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Purge()
}
