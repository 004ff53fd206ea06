package core

// AtomicPointer is a transactional overlay over KVStore with a LIFO stack of
// checkpoints, used to isolate each nested extcall so a failed sub-call
// reverts only its own writes. It generalizes an in-memory, always-committed
// state map into an explicit copy-on-write frame stack.
//
// AtomicPointer is not thread-shared; each execution holds its own, and
// nothing here takes a lock.

import "fmt"

type writeFrame struct {
	sets    map[string][]byte
	deletes map[string]bool
	appends map[string][][]byte
}

func newWriteFrame() *writeFrame {
	return &writeFrame{
		sets:    make(map[string][]byte),
		deletes: make(map[string]bool),
		appends: make(map[string][][]byte),
	}
}

// AtomicPointer is the read/write view every extcall frame executes against.
type AtomicPointer struct {
	backing KVStore
	height  uint64
	frames  []*writeFrame // frames[0] is the outermost (block-level) frame
}

// NewAtomicPointer opens a view rooted at backing, reading committed state
// only up to height, with one base frame already open.
func NewAtomicPointer(backing KVStore, height uint64) *AtomicPointer {
	return &AtomicPointer{backing: backing, height: height, frames: []*writeFrame{newWriteFrame()}}
}

// Checkpoint pushes a fresh frame; writes made after this call land in the
// new frame until Commit or Rollback.
func (p *AtomicPointer) Checkpoint() {
	p.frames = append(p.frames, newWriteFrame())
}

// Commit merges the top frame into the frame below it. Calling Commit on the
// base frame is a programming error (there is nothing to merge into).
func (p *AtomicPointer) Commit() error {
	if len(p.frames) < 2 {
		return fmt.Errorf("atomic pointer: commit with no open checkpoint")
	}
	top := p.frames[len(p.frames)-1]
	under := p.frames[len(p.frames)-2]
	for k, v := range top.sets {
		under.sets[k] = v
		delete(under.deletes, k)
	}
	for k := range top.deletes {
		under.deletes[k] = true
		delete(under.sets, k)
	}
	for k, vs := range top.appends {
		under.appends[k] = append(under.appends[k], vs...)
	}
	p.frames = p.frames[:len(p.frames)-1]
	return nil
}

// Rollback discards the top frame entirely, as if its writes never
// happened — this is how a failed extcall's effects are undone.
func (p *AtomicPointer) Rollback() error {
	if len(p.frames) < 2 {
		return fmt.Errorf("atomic pointer: rollback with no open checkpoint")
	}
	p.frames = p.frames[:len(p.frames)-1]
	return nil
}

// Depth returns the number of open checkpoints beyond the base frame.
func (p *AtomicPointer) Depth() int { return len(p.frames) - 1 }

// Get reads top-down through frames, falling through to backing storage.
func (p *AtomicPointer) Get(key []byte) ([]byte, bool, error) {
	k := string(key)
	for i := len(p.frames) - 1; i >= 0; i-- {
		f := p.frames[i]
		if f.deletes[k] {
			return nil, false, nil
		}
		if v, ok := f.sets[k]; ok {
			out := make([]byte, len(v))
			copy(out, v)
			return out, true, nil
		}
	}
	v, ok, err := p.backing.GetAtHeight(key, p.height)
	if err != nil {
		return nil, false, newCallError(ErrBackend, err.Error())
	}
	return v, ok, nil
}

// ListAppended returns every value ever appended under key: the backing
// store's committed entries followed by whatever this execution chain has
// staged across its open frames, outermost first.
func (p *AtomicPointer) ListAppended(key []byte) ([][]byte, error) {
	base, err := p.backing.ListAppended(key, p.height)
	if err != nil {
		return nil, newCallError(ErrBackend, err.Error())
	}
	k := string(key)
	out := base
	for _, f := range p.frames {
		out = append(out, f.appends[k]...)
	}
	return out, nil
}

// Set writes into the top frame.
func (p *AtomicPointer) Set(key, value []byte) {
	f := p.frames[len(p.frames)-1]
	k := string(key)
	cp := make([]byte, len(value))
	copy(cp, value)
	f.sets[k] = cp
	delete(f.deletes, k)
}

// Delete tombstones key in the top frame.
func (p *AtomicPointer) Delete(key []byte) {
	f := p.frames[len(p.frames)-1]
	k := string(key)
	f.deletes[k] = true
	delete(f.sets, k)
}

// AppendToList stages an append in the top frame. ListAppended sees it at
// once; it reaches storage only after merging into the base frame and
// FlushToBatch.
func (p *AtomicPointer) AppendToList(key, value []byte) {
	f := p.frames[len(p.frames)-1]
	k := string(key)
	cp := make([]byte, len(value))
	copy(cp, value)
	f.appends[k] = append(f.appends[k], cp)
}

// FlushToBatch drains the base frame's accumulated writes into a storage
// Batch, called once per block by the indexer loop after every message has
// completed and merged.
func (p *AtomicPointer) FlushToBatch(b Batch) {
	base := p.frames[0]
	for k, v := range base.sets {
		b.Set([]byte(k), v)
	}
	// The Batch interface only exposes Set/AppendToList, so a deleted key
	// (e.g. a balance that dropped to zero) is persisted as Set(key, nil):
	// an empty value, which reads back as present with zero length.
	for k := range base.deletes {
		b.Set([]byte(k), nil)
	}
	for k, vs := range base.appends {
		for _, v := range vs {
			b.AppendToList([]byte(k), v)
		}
	}
}

// WrittenKeys returns every scalar key the base frame set or deleted, used
// to check that the set of keys mutated while processing a block equals the
// set actually persisted for that block. Append-list keys are not included.
func (p *AtomicPointer) WrittenKeys() [][]byte {
	base := p.frames[0]
	out := make([][]byte, 0, len(base.sets)+len(base.deletes))
	for k := range base.sets {
		out = append(out, []byte(k))
	}
	for k := range base.deletes {
		out = append(out, []byte(k))
	}
	return out
}
