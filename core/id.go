package core

// AlkaneId and Cellpack — the protocol's addressing and message types.
//
// An AlkaneId is a pair of 128-bit integers (block, tx). block selects an
// allocation class (see the AllocClass constants below); tx discriminates
// within that class. Both fields are represented as *big.Int the way the
// teacher's own wide-integer fields are (core/virtual_machine.go's
// AddBigInts, core/common_structs.go's balance fields) rather than a
// dedicated u128 type — math/big is the corpus's idiom for widths beyond a
// machine word, and no u128-specific library appears anywhere in the
// retrieval pack.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Allocation classes for the block component of an AlkaneId.
const (
	ClassReservedFactory    int64 = 0 // (0, n): deploy embedded bytecode to (2, next_sequence)
	ClassReservedSlot       int64 = 1 // (1, n): bind to (2, n) if unassigned
	ClassAllocated          int64 = 2 // normal allocated contracts
	ClassPredictableDeploy  int64 = 3 // (3, n) deploys to (4, n)
	ClassPredictable        int64 = 4 // normal contracts reached via predictable allocation
	ClassFactoryClone       int64 = 5 // clones (2, n)'s bytecode
	ClassPredictableClone   int64 = 6 // clones (4, n)'s bytecode
)

const idByteWidth = 16 // 128 bits per component, fixed-endian 32 bytes total

// AlkaneId is a (block, tx) pair. The id (0,0), built by NullCaller, is the
// distinguished null id used as the caller of a top-level message; the Go
// zero value has nil fields and is not a usable id.
type AlkaneId struct {
	Block *big.Int
	Tx    *big.Int
}

// NewAlkaneId constructs an AlkaneId from int64 components, a convenience
// used pervasively in tests and genesis tables.
func NewAlkaneId(block, tx int64) AlkaneId {
	return AlkaneId{Block: big.NewInt(block), Tx: big.NewInt(tx)}
}

// NullCaller is the distinguished (0,0) id used as Context.Caller for
// top-level messages.
func NullCaller() AlkaneId { return NewAlkaneId(0, 0) }

// Equal reports structural equality.
func (id AlkaneId) Equal(other AlkaneId) bool {
	return id.Block.Cmp(other.Block) == 0 && id.Tx.Cmp(other.Tx) == 0
}

// Less implements lexicographic ordering: by Block, then by Tx.
func (id AlkaneId) Less(other AlkaneId) bool {
	if c := id.Block.Cmp(other.Block); c != 0 {
		return c < 0
	}
	return id.Tx.Cmp(other.Tx) < 0
}

// Class returns the allocation class (the Block component) as an int64,
// panicking if Block does not fit — callers are expected to validate ids
// derived from wire data before dereferencing their class.
func (id AlkaneId) Class() int64 {
	if !id.Block.IsInt64() {
		panic("alkane id block component exceeds int64 range")
	}
	return id.Block.Int64()
}

// String renders "block:tx" for logs and trace output.
func (id AlkaneId) String() string {
	return fmt.Sprintf("%s:%s", id.Block.String(), id.Tx.String())
}

// Bytes serializes the id as 32 bytes: 16 bytes Block || 16 bytes Tx, each
// little-endian. This is the on-disk key-component encoding used throughout
// the /alkanes/{id}/... paths built in core/contract.go and core/balances.go.
func (id AlkaneId) Bytes() []byte {
	out := make([]byte, idByteWidth*2)
	putU128LE(out[:idByteWidth], id.Block)
	putU128LE(out[idByteWidth:], id.Tx)
	return out
}

// ParseAlkaneId is the inverse of Bytes.
func ParseAlkaneId(b []byte) (AlkaneId, error) {
	if len(b) != idByteWidth*2 {
		return AlkaneId{}, fmt.Errorf("alkane id: want %d bytes, got %d", idByteWidth*2, len(b))
	}
	return AlkaneId{
		Block: getU128LE(b[:idByteWidth]),
		Tx:    getU128LE(b[idByteWidth:]),
	}, nil
}

func putU128LE(dst []byte, v *big.Int) {
	b := v.Bytes() // big-endian, minimal length
	for i, j := 0, len(b)-1; j >= 0 && i < len(dst); i, j = i+1, j-1 {
		dst[i] = b[j]
	}
}

func getU128LE(src []byte) *big.Int {
	be := make([]byte, len(src))
	for i, j := 0, len(src)-1; j >= 0; i, j = i+1, j-1 {
		be[i] = src[j]
	}
	return new(big.Int).SetBytes(be)
}

// AlkaneTransfer is a (id, value) pair describing a balance movement either
// incoming to a call or returned from one.
type AlkaneTransfer struct {
	ID    AlkaneId
	Value *big.Int
}

// Cellpack is the on-wire message decoded from a Protostone payload: a
// target AlkaneId plus a vector of u128 inputs. The wire format is a LEB128
// varint sequence: target.Block, target.Tx, then a u32 count followed by
// that many u128 LEB varints.
type Cellpack struct {
	Target AlkaneId
	Inputs []*big.Int
}

// Encode serializes the Cellpack per its on-wire format; DecodeCellpack
// reads it back for the __call family's cellpack argument. The Runestone
// extractor (core/runestone.go) does not use this layout: it reads a
// Cellpack's fields from its own LEB128 field sequence, in which the input
// count is itself a LEB128 varint.
func (c Cellpack) Encode() []byte {
	var buf bytes.Buffer
	writeULEB128(&buf, c.Target.Block)
	writeULEB128(&buf, c.Target.Tx)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c.Inputs)))
	buf.Write(lenBuf[:])
	for _, in := range c.Inputs {
		writeULEB128(&buf, in)
	}
	return buf.Bytes()
}

// DecodeCellpack is the inverse of Encode.
func DecodeCellpack(b []byte) (Cellpack, error) {
	r := bytes.NewReader(b)
	blk, err := readULEB128(r)
	if err != nil {
		return Cellpack{}, fmt.Errorf("decode cellpack target.block: %w", err)
	}
	tx, err := readULEB128(r)
	if err != nil {
		return Cellpack{}, fmt.Errorf("decode cellpack target.tx: %w", err)
	}
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return Cellpack{}, fmt.Errorf("decode cellpack input count: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	inputs := make([]*big.Int, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := readULEB128(r)
		if err != nil {
			return Cellpack{}, fmt.Errorf("decode cellpack input %d: %w", i, err)
		}
		inputs = append(inputs, v)
	}
	return Cellpack{Target: AlkaneId{Block: blk, Tx: tx}, Inputs: inputs}, nil
}

// EncodeInputs serializes just the inputs vector (u32 count + u128 LEB128
// values each), the ABI-encoding convention Context.Inputs uses for nested
// extcalls, where the target is already carried separately by the Context
// itself rather than needing to be re-embedded.
func EncodeInputs(inputs []*big.Int) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(inputs)))
	buf.Write(lenBuf[:])
	for _, in := range inputs {
		writeULEB128(&buf, in)
	}
	return buf.Bytes()
}

// writeULEB128 encodes a non-negative big.Int as an unsigned LEB128 varint.
func writeULEB128(buf *bytes.Buffer, v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	n := new(big.Int).Set(v)
	zero := big.NewInt(0)
	mask := big.NewInt(0x7f)
	for {
		b := new(big.Int).And(n, mask).Int64()
		n.Rsh(n, 7)
		if n.Cmp(zero) == 0 {
			buf.WriteByte(byte(b))
			return
		}
		buf.WriteByte(byte(b) | 0x80)
	}
}

type byteReader interface {
	Read(p []byte) (int, error)
}

func readULEB128(r byteReader) (*big.Int, error) {
	result := big.NewInt(0)
	shift := uint(0)
	var one [1]byte
	for {
		if _, err := r.Read(one[:]); err != nil {
			return nil, err
		}
		b := one[0]
		chunk := new(big.Int).Lsh(big.NewInt(int64(b&0x7f)), shift)
		result.Or(result, chunk)
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 128 {
			return nil, fmt.Errorf("uleb128: varint exceeds 128 bits")
		}
	}
}
