package core_test

import (
	"bytes"
	"testing"

	core "github.com/kungfuflex/alkanes/core"
)

func TestBindAndLoadBytecode(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)
	id := core.NewAlkaneId(2, 1)
	code := []byte("a tiny wasm module body")

	if err := core.BindBytecode(p, id, code, 1<<20); err != nil {
		t.Fatalf("bind: %v", err)
	}
	loaded, err := core.LoadBytecode(p, id)
	if err != nil || !bytes.Equal(loaded, code) {
		t.Fatalf("expected round-tripped bytecode, got %q err=%v", loaded, err)
	}
}

func TestBindBytecodeRejectsSecondWrite(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)
	id := core.NewAlkaneId(2, 1)

	if err := core.BindBytecode(p, id, []byte("first"), 1<<20); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := core.BindBytecode(p, id, []byte("second"), 1<<20); err == nil {
		t.Fatalf("expected DeployConflict on second bind")
	}
}

func TestBindBytecodeRejectsOversizedCode(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)
	id := core.NewAlkaneId(2, 1)

	if err := core.BindBytecode(p, id, make([]byte, 10), 4); err == nil {
		t.Fatalf("expected error for code exceeding max size")
	}
	bound, err := core.IsBound(p, id)
	if err != nil || bound {
		t.Fatalf("expected id to remain unbound after rejected deploy, bound=%v err=%v", bound, err)
	}
}

func TestCodeHashRecordedAtBind(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)
	id := core.NewAlkaneId(2, 1)
	code := []byte("contract bytecode")

	if err := core.BindBytecode(p, id, code, 1<<20); err != nil {
		t.Fatalf("bind: %v", err)
	}
	hash, ok, err := core.CodeHash(p, id)
	if err != nil || !ok || len(hash) != 32 {
		t.Fatalf("expected a 32 byte code hash, got %x ok=%v err=%v", hash, ok, err)
	}
}

func TestSequenceAllocation(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)

	first, err := core.NextSequence(p)
	if err != nil || first.Sign() != 0 {
		t.Fatalf("expected first sequence value 0, got %s err=%v", first, err)
	}
	second, err := core.NextSequence(p)
	if err != nil || second.Int64() != 1 {
		t.Fatalf("expected second sequence value 1, got %s err=%v", second, err)
	}
	current, err := core.ReadSequence(p)
	if err != nil || current.Int64() != 2 {
		t.Fatalf("expected current sequence 2, got %s err=%v", current, err)
	}
}

func TestOriginRoundTrip(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 1)
	id := core.NewAlkaneId(2, 5)

	_, ok, err := core.Origin(p, id)
	if err != nil || ok {
		t.Fatalf("expected no origin recorded yet, ok=%v err=%v", ok, err)
	}

	core.RecordOrigin(p, id, "deadbeef:0")
	outpoint, ok, err := core.Origin(p, id)
	if err != nil || !ok || outpoint != "deadbeef:0" {
		t.Fatalf("expected recorded origin, got %q ok=%v err=%v", outpoint, ok, err)
	}
}
