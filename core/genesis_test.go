package core_test

import (
	"bytes"
	"testing"

	core "github.com/kungfuflex/alkanes/core"
)

func TestInstallGenesisBindsReservedContracts(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 0)
	params := core.NetworkParams{ActivationHeight: 0, MaxCodeBytes: 1 << 20, MaxCallDepth: 8}
	reserved := []core.ReservedContract{
		{Tx: 0, Bytecode: []byte("factory code"), Storage: map[string][]byte{"seed": []byte("value")}},
		{Tx: 1, Bytecode: []byte("other code")},
	}

	if err := core.InstallGenesis(p, params, reserved); err != nil {
		t.Fatalf("install genesis: %v", err)
	}

	id0 := core.NewAlkaneId(core.ClassAllocated, 0)
	code, err := core.LoadBytecode(p, id0)
	if err != nil || !bytes.Equal(code, []byte("factory code")) {
		t.Fatalf("expected (2,0) bytecode installed, got %q err=%v", code, err)
	}

	id1 := core.NewAlkaneId(core.ClassAllocated, 1)
	bound, err := core.IsBound(p, id1)
	if err != nil || !bound {
		t.Fatalf("expected (2,1) bound, bound=%v err=%v", bound, err)
	}
}

func TestInstallGenesisIsIdempotent(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 0)
	params := core.NetworkParams{ActivationHeight: 0, MaxCodeBytes: 1 << 20, MaxCallDepth: 8}
	reserved := []core.ReservedContract{{Tx: 0, Bytecode: []byte("v1")}}

	if err := core.InstallGenesis(p, params, reserved); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if err := core.InstallGenesis(p, params, reserved); err != nil {
		t.Fatalf("second install should be a no-op, got error: %v", err)
	}

	id := core.NewAlkaneId(core.ClassAllocated, 0)
	code, err := core.LoadBytecode(p, id)
	if err != nil || string(code) != "v1" {
		t.Fatalf("expected original bytecode retained, got %q err=%v", code, err)
	}
}
