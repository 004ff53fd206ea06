package core

// Genesis & Id Allocation. The reserved genesis-id set and activation
// height vary by network and are therefore externalized as NetworkParams
// rather than hard-coded here.

import (
	"fmt"
	"math/big"
)

// NetworkParams is the per-network configuration table: the reserved
// genesis-id set and activation heights vary by network, so they are
// externalized here rather than hard-coded in core logic. Populated from
// pkg/config at process start.
type NetworkParams struct {
	ActivationHeight uint64
	ReservedIDs      []int64 // tx components of (block=2, tx=k) installed at ActivationHeight
	MaxCodeBytes     int
	MaxCallDepth     int
}

// ReservedContract is one entry of the static genesis table: the bytecode
// and storage seed for a reserved (2, k) id, installed before the first
// user message of the activation block.
type ReservedContract struct {
	Tx       int64
	Bytecode []byte
	Storage  map[string][]byte // pre-seeded /alkanes/{id}/storage/* entries
}

// InstallGenesis writes every ReservedContract's bytecode and storage seed
// to its (2, k) id. Called once, at the activation height, before any
// transaction of that block is processed. Re-running it against an
// already-initialized store is a no-op per id, since BindBytecode rejects a
// second bytecode write for the same id — giving genesis installation
// at-most-once semantics for free.
func InstallGenesis(p *AtomicPointer, params NetworkParams, reserved []ReservedContract) error {
	for _, rc := range reserved {
		id := NewAlkaneId(ClassAllocated, rc.Tx)
		bound, err := IsBound(p, id)
		if err != nil {
			return err
		}
		if bound {
			continue
		}
		if err := BindBytecode(p, id, rc.Bytecode, params.MaxCodeBytes); err != nil {
			return err
		}
		for k, v := range rc.Storage {
			p.Set(contractStorageKey(id, []byte(k)), v)
		}
	}
	return nil
}

// resolution is the outcome of resolving a Cellpack's target against the
// allocation class rules. ShortCircuit is true when resolution itself
// deployed, bound, or cloned the resolved id; the Extcall Machine still
// invokes the new contract's __execute with the Cellpack's inputs.
type resolution struct {
	Resolved     AlkaneId
	ShortCircuit bool
}

// resolveTarget maps a Cellpack's (block, tx) target to a concrete alkane to
// invoke, performing any deploy/bind/clone mutation as a side effect on p.
// embeddedCode is the bytecode carried by the originating transaction, used
// by the deploy classes (0, 1, 3); it is nil for nested extcalls, which is
// also why topLevel gates which classes are reachable at all — a contract
// attempting to deploy or clone beyond its permission class fails the call.
func resolveTarget(p *AtomicPointer, cp Cellpack, topLevel bool, embeddedCode []byte, maxCodeBytes int) (resolution, error) {
	class := cp.Target.Class()

	if !topLevel {
		switch class {
		case ClassAllocated, ClassPredictable:
			bound, err := IsBound(p, cp.Target)
			if err != nil {
				return resolution{}, err
			}
			if !bound {
				return resolution{}, newCallError(ErrTargetResolution, fmt.Sprintf("alkane %s is not bound", cp.Target))
			}
			return resolution{Resolved: cp.Target}, nil
		default:
			return resolution{}, newCallError(ErrTargetResolution, fmt.Sprintf("class %d is not reachable from a nested call", class))
		}
	}

	switch class {
	case ClassReservedFactory: // (0, n): deploy embedded bytecode to (2, next_sequence)
		seq, err := NextSequence(p)
		if err != nil {
			return resolution{}, err
		}
		id := AlkaneId{Block: big.NewInt(ClassAllocated), Tx: seq}
		if err := BindBytecode(p, id, embeddedCode, maxCodeBytes); err != nil {
			return resolution{}, err
		}
		return resolution{Resolved: id, ShortCircuit: true}, nil

	case ClassReservedSlot: // (1, n): bind to (2, n) if n is unassigned
		id := NewAlkaneId(ClassAllocated, cp.Target.Tx.Int64())
		if err := BindBytecode(p, id, embeddedCode, maxCodeBytes); err != nil {
			return resolution{}, err
		}
		return resolution{Resolved: id, ShortCircuit: true}, nil

	case ClassAllocated, ClassPredictable:
		bound, err := IsBound(p, cp.Target)
		if err != nil {
			return resolution{}, err
		}
		if !bound {
			return resolution{}, newCallError(ErrTargetResolution, fmt.Sprintf("alkane %s is not bound", cp.Target))
		}
		return resolution{Resolved: cp.Target}, nil

	case ClassPredictableDeploy: // (3, n) deploys to (4, n)
		id := NewAlkaneId(ClassPredictable, cp.Target.Tx.Int64())
		if err := BindBytecode(p, id, embeddedCode, maxCodeBytes); err != nil {
			return resolution{}, err
		}
		return resolution{Resolved: id, ShortCircuit: true}, nil

	case ClassFactoryClone: // (5, n): clone template (2, Inputs[0]) to new (2, next_sequence)
		if len(cp.Inputs) < 1 {
			return resolution{}, newCallError(ErrTargetResolution, "factory clone requires a template input")
		}
		template := NewAlkaneId(ClassAllocated, cp.Inputs[0].Int64())
		code, err := LoadBytecode(p, template)
		if err != nil {
			return resolution{}, err
		}
		seq, err := NextSequence(p)
		if err != nil {
			return resolution{}, err
		}
		id := AlkaneId{Block: big.NewInt(ClassAllocated), Tx: seq}
		if err := BindBytecode(p, id, code, maxCodeBytes); err != nil {
			return resolution{}, err
		}
		return resolution{Resolved: id, ShortCircuit: true}, nil

	case ClassPredictableClone: // (6, n): clone template (4, Inputs[0]) to (4, n)
		if len(cp.Inputs) < 1 {
			return resolution{}, newCallError(ErrTargetResolution, "predictable clone requires a template input")
		}
		template := NewAlkaneId(ClassPredictable, cp.Inputs[0].Int64())
		code, err := LoadBytecode(p, template)
		if err != nil {
			return resolution{}, err
		}
		id := NewAlkaneId(ClassPredictable, cp.Target.Tx.Int64())
		if err := BindBytecode(p, id, code, maxCodeBytes); err != nil {
			return resolution{}, err
		}
		return resolution{Resolved: id, ShortCircuit: true}, nil

	default:
		return resolution{}, newCallError(ErrTargetResolution, fmt.Sprintf("unknown allocation class %d", class))
	}
}
