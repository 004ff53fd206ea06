package core_test

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	core "github.com/kungfuflex/alkanes/core"
)

func TestViewSurfaceSimulate(t *testing.T) {
	store := core.NewMemoryStore()
	ptr := core.NewAtomicPointer(store, 0)
	target := core.NewAlkaneId(2, 1)
	if err := core.BindBytecode(ptr, target, []byte("code"), 1<<20); err != nil {
		t.Fatalf("bind: %v", err)
	}
	batch, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("begin batch: %v", err)
	}
	ptr.FlushToBatch(batch)
	if err := batch.Commit(0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	machine := core.NewMachine(echoVM(7, &core.ExtendedCallResponse{Data: []byte("ok")}), 1<<20, 8)
	network := core.NetworkParams{MaxCallDepth: 8}
	view := core.NewViewSurface(store, network, machine, core.NewInMemoryProtorunesLedger(), 100000)

	body := `{"height":0,"target":[2,1],"inputs":["1","2"],"incoming":[]}`
	req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	view.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["fuel_used"].(float64) != 7 {
		t.Fatalf("expected fuel_used 7, got %v", out["fuel_used"])
	}
}

func TestViewSurfaceFuelRemaining(t *testing.T) {
	store := core.NewMemoryStore()
	ptr := core.NewAtomicPointer(store, 0)
	core.PersistCarryOver(ptr, 42)
	batch, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("begin batch: %v", err)
	}
	ptr.FlushToBatch(batch)
	if err := batch.Commit(0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	machine := core.NewMachine(echoVM(0, &core.ExtendedCallResponse{}), 1<<20, 8)
	view := core.NewViewSurface(store, core.NetworkParams{MaxCallDepth: 8}, machine, core.NewInMemoryProtorunesLedger(), 1000)

	req := httptest.NewRequest(http.MethodGet, "/fuel?height=0", nil)
	rr := httptest.NewRecorder()
	view.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out map[string]uint64
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["fuel_remaining"] != 42 {
		t.Fatalf("expected fuel_remaining 42, got %v", out["fuel_remaining"])
	}
}

func TestViewSurfaceInventory(t *testing.T) {
	store := core.NewMemoryStore()
	owner := core.NewAlkaneId(2, 9)
	token := core.NewAlkaneId(2, 10)
	ptr := core.NewAtomicPointer(store, 0)
	if err := core.Credit(ptr, owner, token, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	batch, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("begin batch: %v", err)
	}
	ptr.FlushToBatch(batch)
	if err := batch.Commit(0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	machine := core.NewMachine(echoVM(0, &core.ExtendedCallResponse{}), 1<<20, 8)
	view := core.NewViewSurface(store, core.NetworkParams{MaxCallDepth: 8}, machine, core.NewInMemoryProtorunesLedger(), 1000)

	req := httptest.NewRequest(http.MethodGet, "/inventory/2:9?height=0", nil)
	rr := httptest.NewRecorder()
	view.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var held []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &held); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(held) != 1 {
		t.Fatalf("expected 1 held token, got %d: %s", len(held), rr.Body.String())
	}
}
