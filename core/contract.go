package core

// Bytecode and contract-private storage paths: writing bytecode, enforcing
// the write-once binding invariant, and the contract storage key namespace.

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

func bytecodeKey(id AlkaneId) []byte {
	return append([]byte("/alkanes/"), append(id.Bytes(), []byte("/")...)...)
}

func codeHashKey(id AlkaneId) []byte {
	return append([]byte("/alkanes/"), append(id.Bytes(), []byte("/codehash")...)...)
}

func contractStorageKey(id AlkaneId, key []byte) []byte {
	return append([]byte("/alkanes/"), append(id.Bytes(), append([]byte("/storage/"), key...)...)...)
}

func sequenceKey() []byte { return []byte("/sequence") }

func idToOutpointKey(id AlkaneId) []byte {
	return append([]byte("/alkanes_id_to_outpoint/"), id.Bytes()...)
}

// IsBound reports whether id already has bytecode written.
func IsBound(p *AtomicPointer, id AlkaneId) (bool, error) {
	_, ok, err := p.Get(bytecodeKey(id))
	return ok, err
}

// BindBytecode writes compressed bytecode to id exactly once; a second call
// for the same id is a DeployConflict. maxCodeBytes bounds the uncompressed
// size, enforced at deploy: exceeding it fails the deploy call with no id
// assignment.
func BindBytecode(p *AtomicPointer, id AlkaneId, rawCode []byte, maxCodeBytes int) error {
	if len(rawCode) > maxCodeBytes {
		return newCallError(ErrDeployConflict, fmt.Sprintf("bytecode %d bytes exceeds limit %d", len(rawCode), maxCodeBytes))
	}
	bound, err := IsBound(p, id)
	if err != nil {
		return err
	}
	if bound {
		return newCallError(ErrDeployConflict, fmt.Sprintf("alkane %s already bound", id))
	}
	compressed, err := CompressBytecode(rawCode)
	if err != nil {
		return err
	}
	p.Set(bytecodeKey(id), compressed)
	p.Set(codeHashKey(id), crypto.Keccak256(rawCode))
	return nil
}

// CodeHash returns the keccak256 digest of id's uncompressed bytecode,
// recorded at bind time so a caller can verify what was deployed without
// decompressing the stored copy.
func CodeHash(p *AtomicPointer, id AlkaneId) ([]byte, bool, error) {
	return p.Get(codeHashKey(id))
}

// LoadBytecode reads and decompresses id's bytecode.
func LoadBytecode(p *AtomicPointer, id AlkaneId) ([]byte, error) {
	compressed, ok, err := p.Get(bytecodeKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newCallError(ErrTargetResolution, fmt.Sprintf("alkane %s has no bytecode", id))
	}
	return DecompressBytecode(compressed)
}

// ContractStorage reads one key from id's private storage namespace,
// "/alkanes/{id}/storage/{key}" — the same path the Extcall Machine writes
// a contract's declared ExtendedCallResponse.Storage deltas to.
func ContractStorage(p *AtomicPointer, id AlkaneId, key []byte) ([]byte, bool, error) {
	return p.Get(contractStorageKey(id, key))
}

// RecordOrigin remembers the outpoint where id was created, for
// traceability under "/alkanes_id_to_outpoint/{id}".
func RecordOrigin(p *AtomicPointer, id AlkaneId, outpoint string) {
	p.Set(idToOutpointKey(id), []byte(outpoint))
}

// Origin returns the outpoint id was created at, if known.
func Origin(p *AtomicPointer, id AlkaneId) (string, bool, error) {
	v, ok, err := p.Get(idToOutpointKey(id))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

// NextSequence atomically increments and returns the pre-increment value of
// the /sequence counter, used to allocate new class-2 ids.
func NextSequence(p *AtomicPointer) (*big.Int, error) {
	v, ok, err := p.Get(sequenceKey())
	if err != nil {
		return nil, err
	}
	cur := big.NewInt(0)
	if ok {
		cur = new(big.Int).SetBytes(v)
	}
	next := new(big.Int).Add(cur, big.NewInt(1))
	p.Set(sequenceKey(), next.Bytes())
	return cur, nil
}

// ReadSequence returns the current counter without incrementing it, used by
// the view surface's sequence() query.
func ReadSequence(p *AtomicPointer) (*big.Int, error) {
	v, ok, err := p.Get(sequenceKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(v), nil
}
