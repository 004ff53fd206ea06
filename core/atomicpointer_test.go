package core_test

import (
	"bytes"
	"testing"

	core "github.com/kungfuflex/alkanes/core"
)

func TestAtomicPointerCommitMergesIntoParent(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)

	p.Set([]byte("k"), []byte("v1"))
	p.Checkpoint()
	p.Set([]byte("k"), []byte("v2"))

	v, ok, err := p.Get([]byte("k"))
	if err != nil || !ok || !bytes.Equal(v, []byte("v2")) {
		t.Fatalf("expected v2 visible inside checkpoint, got %q ok=%v err=%v", v, ok, err)
	}

	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, ok, err = p.Get([]byte("k"))
	if err != nil || !ok || !bytes.Equal(v, []byte("v2")) {
		t.Fatalf("expected v2 after commit, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestAtomicPointerRollbackDiscardsFrame(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)

	p.Set([]byte("k"), []byte("v1"))
	p.Checkpoint()
	p.Set([]byte("k"), []byte("v2"))
	p.Delete([]byte("other"))

	if err := p.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	v, ok, err := p.Get([]byte("k"))
	if err != nil || !ok || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("expected v1 to survive rollback, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestAtomicPointerCommitWithNoCheckpointFails(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)
	if err := p.Commit(); err == nil {
		t.Fatalf("expected error committing the base frame")
	}
}

func TestAtomicPointerListAppendedSpansFramesAndBacking(t *testing.T) {
	store := core.NewMemoryStore()
	if err := store.AppendToList([]byte("list"), []byte("committed-1")); err != nil {
		t.Fatalf("seed backing append: %v", err)
	}

	p := core.NewAtomicPointer(store, 1)
	p.AppendToList([]byte("list"), []byte("base-1"))
	p.Checkpoint()
	p.AppendToList([]byte("list"), []byte("nested-1"))

	got, err := p.ListAppended([]byte("list"))
	if err != nil {
		t.Fatalf("list appended: %v", err)
	}
	want := [][]byte{[]byte("committed-1"), []byte("base-1"), []byte("nested-1")}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAtomicPointerListAppendedRespectsHeight(t *testing.T) {
	store := core.NewMemoryStore()

	batch1, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("begin batch 1: %v", err)
	}
	batch1.AppendToList([]byte("list"), []byte("at-height-1"))
	if err := batch1.Commit(1); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	batch2, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("begin batch 2: %v", err)
	}
	batch2.AppendToList([]byte("list"), []byte("at-height-2"))
	if err := batch2.Commit(2); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	p := core.NewAtomicPointer(store, 1)
	got, err := p.ListAppended([]byte("list"))
	if err != nil {
		t.Fatalf("list appended: %v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[0], []byte("at-height-1")) {
		t.Fatalf("expected only the height-1 append visible at height 1, got %q", got)
	}

	p2 := core.NewAtomicPointer(store, 2)
	got2, err := p2.ListAppended([]byte("list"))
	if err != nil {
		t.Fatalf("list appended at height 2: %v", err)
	}
	if len(got2) != 2 {
		t.Fatalf("expected both appends visible at height 2, got %q", got2)
	}
}

func TestAtomicPointerFlushToBatchPersistsBaseFrame(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 5)
	p.Set([]byte("k"), []byte("v"))
	p.AppendToList([]byte("list"), []byte("a"))

	batch, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("begin batch: %v", err)
	}
	p.FlushToBatch(batch)
	if err := batch.Commit(5); err != nil {
		t.Fatalf("commit batch: %v", err)
	}

	v, ok, err := store.GetAtHeight([]byte("k"), 5)
	if err != nil || !ok || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("expected flushed value, got %q ok=%v err=%v", v, ok, err)
	}
	appended, err := store.ListAppended([]byte("list"), 5)
	if err != nil || len(appended) != 1 || !bytes.Equal(appended[0], []byte("a")) {
		t.Fatalf("expected flushed append, got %q err=%v", appended, err)
	}
}
