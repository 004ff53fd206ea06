package core

// Message Extractor: pulls protocol-tagged payloads (Protostones carrying a
// Cellpack) out of a Bitcoin block's transactions. A Runestone is an
// OP_RETURN output whose script begins with the protocol's magic opcode;
// its payload is a sequence of LEB128-encoded integer fields, one of which
// (the protocol tag) identifies a Protostone belonging to this indexer
// rather than some other OP_RETURN-based protocol sharing the same output.

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// protocolTag is the integer field value that marks a Protostone as
// belonging to the alkanes protocol, as opposed to some other metaprotocol
// multiplexed onto the same Runestone envelope.
const protocolTag = 1

// ExtractedMessage is one Cellpack found in a transaction, along with the
// vout of the OP_RETURN output that carried it and the output indices the
// Protostone declares as its pointer and refund pointer (0 when absent).
type ExtractedMessage struct {
	TxIndex       uint32
	Vout          uint32
	Cellpack      Cellpack
	EmbeddedCode  []byte // present only for deploy-class targets (0,1,3)
	Pointer       uint32
	RefundPointer uint32
	PayloadLen    int // raw Runestone payload length, feeds VirtualSize
}

// ExtractMessages scans every transaction of a block for Runestone-tagged
// Protostones and decodes each into a Cellpack. Transactions or outputs that
// do not carry a recognizable Runestone are skipped without error: most
// transactions in a Bitcoin block carry no alkanes message at all.
func ExtractMessages(block *wire.MsgBlock) ([]ExtractedMessage, error) {
	var out []ExtractedMessage
	for txIdx, tx := range block.Transactions {
		msgs, err := extractFromTx(tx, uint32(txIdx))
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", txIdx, err)
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func extractFromTx(tx *wire.MsgTx, txIndex uint32) ([]ExtractedMessage, error) {
	var out []ExtractedMessage
	for vout, txOut := range tx.TxOut {
		payload, ok := runestonePayload(txOut.PkScript)
		if !ok {
			continue
		}
		fields, err := decodeFields(payload)
		if err != nil {
			// a malformed Runestone on this output is the concern of
			// whatever protocol actually owns it; this indexer simply
			// does not recognize it as one of its own messages.
			continue
		}
		if fields.tag != protocolTag {
			continue
		}

		cp := Cellpack{Target: NewAlkaneId(fields.targetBlock, fields.targetTx), Inputs: fields.inputs}
		msg := ExtractedMessage{
			TxIndex:       txIndex,
			Vout:          uint32(vout),
			Cellpack:      cp,
			Pointer:       fields.pointer,
			RefundPointer: fields.refundPointer,
			PayloadLen:    len(payload),
		}
		if cp.Target.Class() == ClassReservedFactory || cp.Target.Class() == ClassReservedSlot || cp.Target.Class() == ClassPredictableDeploy {
			msg.EmbeddedCode = extractWitnessEnvelope(tx)
		}
		out = append(out, msg)
	}
	return out, nil
}

// runestonePayload reports whether script is an OP_RETURN output carrying a
// protocol envelope, returning the raw bytes following the magic opcode.
func runestonePayload(script []byte) ([]byte, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, false
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_13 {
		return nil, false
	}
	var payload bytes.Buffer
	for tokenizer.Next() {
		payload.Write(tokenizer.Data())
	}
	if err := tokenizer.Err(); err != nil {
		return nil, false
	}
	return payload.Bytes(), true
}

// runestoneFields is the decoded tag/value sequence of one Runestone
// payload relevant to Cellpack extraction.
type runestoneFields struct {
	tag           int64
	targetBlock   int64
	targetTx      int64
	inputs        []*big.Int
	pointer       uint32
	refundPointer uint32
}

func decodeFields(payload []byte) (runestoneFields, error) {
	r := bytes.NewReader(payload)
	var f runestoneFields

	tag, err := readULEB128(r)
	if err != nil {
		return f, fmt.Errorf("decode tag: %w", err)
	}
	f.tag = tag.Int64()

	blk, err := readULEB128(r)
	if err != nil {
		return f, fmt.Errorf("decode target block: %w", err)
	}
	f.targetBlock = blk.Int64()

	txc, err := readULEB128(r)
	if err != nil {
		return f, fmt.Errorf("decode target tx: %w", err)
	}
	f.targetTx = txc.Int64()

	n, err := readULEB128(r)
	if err != nil {
		return f, fmt.Errorf("decode input count: %w", err)
	}
	count := n.Int64()
	f.inputs = make([]*big.Int, 0, count)
	for i := int64(0); i < count; i++ {
		v, err := readULEB128(r)
		if err != nil {
			return f, fmt.Errorf("decode input %d: %w", i, err)
		}
		f.inputs = append(f.inputs, v)
	}

	if p, err := readULEB128(r); err == nil {
		f.pointer = uint32(p.Int64())
	}
	if rp, err := readULEB128(r); err == nil {
		f.refundPointer = uint32(rp.Int64())
	}
	return f, nil
}

// envelopeMagic tags a witness script-path leaf as carrying embedded
// contract bytecode, the same inscription-envelope convention ordinal-style
// protocols use: OP_FALSE OP_IF <magic> <data pushes...> OP_ENDIF.
var envelopeMagic = []byte("alkn")

// extractWitnessEnvelope scans the first input's witness stack for a
// tapscript leaf carrying an envelope-tagged data push and concatenates its
// chunks into the raw bytecode a deploy-class Cellpack references.
// Transactions with no witness, or whose leaf carries no recognized
// envelope, return nil: most Cellpacks target already-bound ids and carry
// no embedded code at all.
func extractWitnessEnvelope(tx *wire.MsgTx) []byte {
	if len(tx.TxIn) == 0 {
		return nil
	}
	for _, elem := range tx.TxIn[0].Witness {
		if data, ok := envelopeData(elem); ok {
			return data
		}
	}
	return nil
}

func envelopeData(script []byte) ([]byte, bool) {
	tok := txscript.MakeScriptTokenizer(0, script)
	if !tok.Next() || tok.Opcode() != txscript.OP_FALSE {
		return nil, false
	}
	if !tok.Next() || tok.Opcode() != txscript.OP_IF {
		return nil, false
	}
	if !tok.Next() || !bytes.Equal(tok.Data(), envelopeMagic) {
		return nil, false
	}
	var out bytes.Buffer
	for tok.Next() {
		if tok.Opcode() == txscript.OP_ENDIF {
			break
		}
		out.Write(tok.Data())
	}
	if err := tok.Err(); err != nil {
		return nil, false
	}
	return out.Bytes(), true
}
