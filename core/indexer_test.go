package core_test

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	core "github.com/kungfuflex/alkanes/core"
)

func TestProcessBlockInstallsGenesisAndDispatchesMessage(t *testing.T) {
	store := core.NewMemoryStore()
	network := core.NetworkParams{ActivationHeight: 100, MaxCodeBytes: 1 << 20, MaxCallDepth: 8}
	schedule := core.FuelSchedule{BudgetPerVByte: 10, BudgetFloor: 1000, PerMessageCap: 500, CarryOverMax: 10000, WeightPerByte: 1}
	machine := core.NewMachine(echoVM(3, &core.ExtendedCallResponse{}), 1<<20, 8)
	ledger := core.NewInMemoryProtorunesLedger()
	reserved := []core.ReservedContract{{Tx: 0, Bytecode: []byte("factory code")}}

	ix := core.NewIndexer(store, network, schedule, machine, ledger, reserved, true, 0)

	// tag=1 target=(2,0) inputs=[] pointer=0 refund=0
	payload := []byte{1, 2, 0, 0, 0, 0}
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(txscript.OP_13).
		AddData(payload).
		Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, script))
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}

	if err := ix.ProcessBlock(block, network.ActivationHeight); err != nil {
		t.Fatalf("process block: %v", err)
	}

	ptr := core.NewAtomicPointer(store, network.ActivationHeight)
	id := core.NewAlkaneId(core.ClassAllocated, 0)
	bound, err := core.IsBound(ptr, id)
	if err != nil || !bound {
		t.Fatalf("expected genesis contract bound, bound=%v err=%v", bound, err)
	}

	outpoint := tx.TxHash().String() + ":0"
	raw, ok, err := ptr.Get(append([]byte("/traces/"), []byte(outpoint)...))
	if err != nil || !ok || len(raw) == 0 {
		t.Fatalf("expected a persisted trace for the processed message, ok=%v err=%v", ok, err)
	}
}

func TestProcessBlockSkipsMessageFailureWithoutAbortingBlock(t *testing.T) {
	store := core.NewMemoryStore()
	network := core.NetworkParams{ActivationHeight: 0, MaxCodeBytes: 1 << 20, MaxCallDepth: 8}
	schedule := core.FuelSchedule{BudgetPerVByte: 10, BudgetFloor: 1000, PerMessageCap: 500, CarryOverMax: 10000, WeightPerByte: 1}
	machine := core.NewMachine(echoVM(0, &core.ExtendedCallResponse{}), 1<<20, 8)
	ledger := core.NewInMemoryProtorunesLedger()

	ix := core.NewIndexer(store, network, schedule, machine, ledger, nil, false, 0)

	// target (2,7) is never bound, so dispatch fails with TargetResolutionError
	payload := []byte{1, 2, 7, 0, 0, 0}
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(txscript.OP_13).
		AddData(payload).
		Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, script))
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}

	if err := ix.ProcessBlock(block, 0); err != nil {
		t.Fatalf("expected a per-message failure not to abort the block, got %v", err)
	}
}
