package core_test

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	core "github.com/kungfuflex/alkanes/core"
)

func buildRunestoneScript(t *testing.T, payload []byte) []byte {
	t.Helper()
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(txscript.OP_13).
		AddData(payload).
		Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	return script
}

func TestExtractMessagesDecodesCellpack(t *testing.T) {
	// tag=1(protocol) target=(2,5) inputs=[10,20] pointer=0 refund=1
	payload := []byte{1, 2, 5, 2, 10, 20, 0, 1}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, buildRunestoneScript(t, payload)))
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}

	msgs, err := core.ExtractMessages(block)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	want := core.NewAlkaneId(2, 5)
	if !m.Cellpack.Target.Equal(want) {
		t.Fatalf("target mismatch: got %s, want %s", m.Cellpack.Target, want)
	}
	if len(m.Cellpack.Inputs) != 2 || m.Cellpack.Inputs[0].Int64() != 10 || m.Cellpack.Inputs[1].Int64() != 20 {
		t.Fatalf("unexpected inputs: %v", m.Cellpack.Inputs)
	}
	if m.Pointer != 0 || m.RefundPointer != 1 {
		t.Fatalf("unexpected pointer/refund: %d/%d", m.Pointer, m.RefundPointer)
	}
	if m.EmbeddedCode != nil {
		t.Fatalf("expected no embedded code for a non-deploy target, got %q", m.EmbeddedCode)
	}
}

func TestExtractMessagesSkipsNonRunestoneOutputs(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	plain, _ := txscript.NewScriptBuilder().AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).Script()
	tx.AddTxOut(wire.NewTxOut(1000, plain))
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}

	msgs, err := core.ExtractMessages(block)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages from a non-Runestone output, got %d", len(msgs))
	}
}

func TestExtractMessagesReadsWitnessEnvelopeForDeployClass(t *testing.T) {
	// tag=1 target=(0,3) [ClassReservedFactory] inputs=[] pointer=0 refund=0
	payload := []byte{1, 0, 3, 0, 0, 0}

	witnessScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_FALSE).
		AddOp(txscript.OP_IF).
		AddData([]byte("alkn")).
		AddData([]byte("embedded-code")).
		AddOp(txscript.OP_ENDIF).
		Script()
	if err != nil {
		t.Fatalf("build witness script: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{Witness: wire.TxWitness{witnessScript}})
	tx.AddTxOut(wire.NewTxOut(0, buildRunestoneScript(t, payload)))
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}

	msgs, err := core.ExtractMessages(block)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if string(msgs[0].EmbeddedCode) != "embedded-code" {
		t.Fatalf("expected embedded code to be recovered from the witness envelope, got %q", msgs[0].EmbeddedCode)
	}
}
