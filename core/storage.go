package core

// Storage Abstraction.
//
// KVStore is the height-versioned key/value interface the indexer assumes;
// the real backend (e.g. an LSM-tree engine) is an external collaborator —
// only the interface and a MemoryStore reference implementation live here,
// generalized from a StateRW/memState-style in-memory map into an
// explicitly height-scoped, batch-commit store rather than an
// always-mutable one.

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// KVStore is the storage engine contract consumed by AtomicPointer. All
// indexer writes of one block commit as a single batch tagged with that
// block's height; reads at height h observe only commits with tag <= h.
type KVStore interface {
	Get(key []byte) ([]byte, bool, error)
	GetAtHeight(key []byte, height uint64) ([]byte, bool, error)
	Set(key, value []byte) error
	AppendToList(key, value []byte) error
	List(prefix []byte) ([][]byte, error)
	ListAppended(key []byte, height uint64) ([][]byte, error)

	BeginBatch() (Batch, error)
}

// Batch accumulates writes for one height and commits them atomically.
type Batch interface {
	Set(key, value []byte)
	AppendToList(key, value []byte)
	Commit(height uint64) error
	Discard()
}

// versionedEntry is one committed revision of a key.
type versionedEntry struct {
	height uint64
	value  []byte
	tomb   bool
}

// MemoryStore is a height-versioned, in-memory KVStore. It keeps every
// revision of every key so that GetAtHeight(key, h) can reconstruct the
// state as of any previously committed height, mirroring the intended
// backend contract without depending on a real LSM engine.
type MemoryStore struct {
	mu       sync.RWMutex
	revs     map[string][]versionedEntry // sorted by height ascending
	lists    map[string][][]byte         // append-only, visible from the height they were written at
	listRevH map[string][]uint64         // height each list append became visible at
	maxH     uint64
	log      *log.Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revs:     make(map[string][]versionedEntry),
		lists:    make(map[string][][]byte),
		listRevH: make(map[string][]uint64),
		log:      log.WithField("component", "storage"),
	}
}

func (s *MemoryStore) Get(key []byte) ([]byte, bool, error) {
	return s.GetAtHeight(key, ^uint64(0))
}

func (s *MemoryStore) GetAtHeight(key []byte, height uint64) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs, ok := s.revs[string(key)]
	if !ok {
		return nil, false, nil
	}
	var best *versionedEntry
	for i := range revs {
		if revs[i].height <= height {
			best = &revs[i]
		} else {
			break
		}
	}
	if best == nil || best.tomb {
		return nil, false, nil
	}
	out := make([]byte, len(best.value))
	copy(out, best.value)
	return out, true, nil
}

// Set writes a value immediately outside of any batch. The indexer does not
// call it: its writes, genesis installation included, go through an
// AtomicPointer and BeginBatch.
func (s *MemoryStore) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, s.maxH)
	return nil
}

func (s *MemoryStore) setLocked(key, value []byte, height uint64) {
	k := string(key)
	cp := make([]byte, len(value))
	copy(cp, value)
	s.revs[k] = append(s.revs[k], versionedEntry{height: height, value: cp})
}

func (s *MemoryStore) AppendToList(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	cp := make([]byte, len(value))
	copy(cp, value)
	s.lists[k] = append(s.lists[k], cp)
	s.listRevH[k] = append(s.listRevH[k], s.maxH)
	return nil
}

// List returns, in strict lexicographic key order, the most recent value of
// every key sharing prefix: a "list(prefix) -> iterator" contract over
// scalar keys such as /alkanes/{id}/balances/. Append lists such as
// /alkanes/{id}/inventory/ are read with ListAppended instead.
func (s *MemoryStore) List(prefix []byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.revs {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		revs := s.revs[k]
		last := revs[len(revs)-1]
		if last.tomb {
			continue
		}
		out = append(out, last.value)
	}
	return out, nil
}

// ListAppended returns the ordered append-list stored under key as of
// height, e.g. an id's inventory: only entries whose commit height is
// <= height are visible, the same rule GetAtHeight applies to ordinary
// keys, so a historical view query cannot observe appends committed at a
// later height than it was opened at.
func (s *MemoryStore) ListAppended(key []byte, height uint64) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := string(key)
	vals := s.lists[k]
	revs := s.listRevH[k]
	out := make([][]byte, 0, len(vals))
	for i, v := range vals {
		if revs[i] <= height {
			cp := make([]byte, len(v))
			copy(cp, v)
			out = append(out, cp)
		}
	}
	return out, nil
}

// memBatch is a staged set of writes awaiting Commit.
type memBatch struct {
	store     *MemoryStore
	sets      map[string][]byte
	setOrder  []string
	appends   map[string][][]byte
	discarded bool
}

func (s *MemoryStore) BeginBatch() (Batch, error) {
	return &memBatch{
		store:   s,
		sets:    make(map[string][]byte),
		appends: make(map[string][][]byte),
	}, nil
}

func (b *memBatch) Set(key, value []byte) {
	k := string(key)
	if _, seen := b.sets[k]; !seen {
		b.setOrder = append(b.setOrder, k)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	b.sets[k] = cp
}

func (b *memBatch) AppendToList(key, value []byte) {
	k := string(key)
	cp := make([]byte, len(value))
	copy(cp, value)
	b.appends[k] = append(b.appends[k], cp)
}

// Commit applies every staged write as one atomic unit tagged with height.
// Callers must never observe a partial application: MemoryStore applies
// synchronously under its single write lock, so no other goroutine can
// interleave with the writes that follow (the indexer is single threaded
// regardless).
func (b *memBatch) Commit(height uint64) error {
	if b.discarded {
		return fmt.Errorf("commit on discarded batch")
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if height < b.store.maxH {
		return ErrHeightRegressed
	}
	for _, k := range b.setOrder {
		b.store.setLocked([]byte(k), b.sets[k], height)
	}
	for k, vals := range b.appends {
		for _, v := range vals {
			b.store.lists[k] = append(b.store.lists[k], v)
			b.store.listRevH[k] = append(b.store.listRevH[k], height)
		}
	}
	if height > b.store.maxH {
		b.store.maxH = height
	}
	b.store.log.WithField("height", height).WithField("keys", len(b.setOrder)).Debug("committed batch")
	return nil
}

func (b *memBatch) Discard() { b.discarded = true }
