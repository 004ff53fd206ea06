package core

// Extcall Machine: executes one Cellpack under a parent context,
// implementing call/delegatecall/staticcall semantics, balance transfer
// rules, storage isolation vs. sharing, return-data propagation, and depth
// enforcement.

import (
	"fmt"
	"math/big"

	log "github.com/sirupsen/logrus"
)

// CallKind distinguishes the three extcall flavors.
type CallKind int

const (
	CallStandard CallKind = iota
	CallDelegate
	CallStatic
)

// ExtendedCallResponse is the contract-declared outcome of one __execute
// invocation: the alkanes it sends back to its caller, the storage deltas it
// wants applied to its own (or, under delegatecall, its caller's) storage
// frame, and arbitrary return data. The guest builds this structure in its
// own linear memory and exposes it via the `__response_ptr`/`__response_len`
// export convention documented in core/vm.go — the host never receives
// storage writes as they happen, only as this declared diff, which is why
// the host function surface has no storage *write* import.
type ExtendedCallResponse struct {
	Alkanes []AlkaneTransfer
	Storage [][2][]byte
	Data    []byte
}

// Machine is the Extcall Machine: one long-lived value per indexer process,
// holding the VM tier used to run contract code and the storage/depth
// limits from NetworkParams.
type Machine struct {
	vm           VM
	maxCodeBytes int
	maxStackLen  int
	log          *log.Entry
}

// NewMachine constructs a Machine bound to vm (typically a *WasmVM, but any
// VM implementation works — the interchangeable SuperLight/Light/Heavy tier
// pattern lets extcall-level tests run against a lightweight stand-in
// instead of a real WASM module).
func NewMachine(vm VM, maxCodeBytes, maxStackLen int) *Machine {
	return &Machine{vm: vm, maxCodeBytes: maxCodeBytes, maxStackLen: maxStackLen, log: log.WithField("component", "extcall")}
}

// callOutcome pairs a response with the fuel it consumed. Dispatch and Call
// return these two values directly and do not use this type.
type callOutcome struct {
	Response *ExtendedCallResponse
	Consumed uint64
}

// Dispatch runs a top-level Protostone message: caller is the distinguished
// null id. It is the only path that may resolve deploy/bind/clone targets
// (classes 0,1,3,5,6).
func (m *Machine) Dispatch(p *AtomicPointer, stack *Stack, baseCtx Context, cp Cellpack, embeddedCode []byte, fuelLimit uint64, trace *Trace) (*ExtendedCallResponse, uint64, error) {
	return m.run(p, stack, baseCtx, cp, embeddedCode, fuelLimit, trace, true)
}

// Call runs a nested extcall issued by a running contract via __call,
// __delegatecall, or __staticcall. Only classes 2 and 4 are reachable; a
// contract attempting to deploy or clone beyond its permission class fails
// the call.
func (m *Machine) Call(p *AtomicPointer, stack *Stack, parentCtx Context, kind CallKind, cp Cellpack, incoming []AlkaneTransfer, fuelLimit uint64, trace *Trace) (*ExtendedCallResponse, uint64, error) {
	if fuelLimit == 0 {
		return nil, 0, newCallError(ErrFuelExhausted, "fuel_limit == 0")
	}
	res, err := resolveTarget(p, cp, false, nil, m.maxCodeBytes)
	if err != nil {
		return nil, 0, err
	}

	nestedCtx := m.buildNestedContext(parentCtx, kind, res.Resolved, cp.Inputs, incoming)

	if err := stack.Push(nestedCtx, p, kind == CallStatic); err != nil {
		return nil, 0, err
	}
	defer stack.Pop()

	p.Checkpoint()

	if kind != CallDelegate {
		for _, t := range incoming {
			if err := MoveBalance(p, parentCtx.Myself, res.Resolved, t.ID, t.Value); err != nil {
				p.Rollback()
				return nil, 0, err
			}
		}
	}

	code, err := LoadBytecode(p, loadTargetFor(kind, res.Resolved, parentCtx, nestedCtx))
	if err != nil {
		p.Rollback()
		return nil, 0, err
	}

	response, consumed, err := m.invoke(code, nestedCtx, p, stack, fuelLimit, trace, kind == CallStatic)
	if err != nil {
		p.Rollback()
		m.traceFailure(trace, stack.Depth(), parentCtx.Myself, res.Resolved, consumed, err)
		return nil, consumed, err
	}

	if kind == CallStatic && len(response.Storage) > 0 {
		p.Rollback()
		err := newCallError(ErrStorageWriteInStaticCall, fmt.Sprintf("staticcall to %s attempted a storage write", res.Resolved))
		m.traceFailure(trace, stack.Depth(), parentCtx.Myself, res.Resolved, consumed, err)
		return nil, consumed, err
	}

	m.applySuccess(p, kind, parentCtx, nestedCtx, response)
	if err := p.Commit(); err != nil {
		return nil, consumed, err
	}
	trace.Record(TraceEvent{Kind: EventReturn, Depth: stack.Depth(), Caller: parentCtx.Myself, Target: res.Resolved, FuelUsed: consumed})
	return response, consumed, nil
}

// run is the shared body of Dispatch and the top-level entry the indexer
// loop uses directly; it is exported as Dispatch above with topLevel fixed
// to true since only top-level messages may resolve deploy/bind/clone
// targets.
func (m *Machine) run(p *AtomicPointer, stack *Stack, baseCtx Context, cp Cellpack, embeddedCode []byte, fuelLimit uint64, trace *Trace, topLevel bool) (*ExtendedCallResponse, uint64, error) {
	if fuelLimit == 0 {
		return nil, 0, newCallError(ErrFuelExhausted, "fuel_limit == 0")
	}
	// The checkpoint opens before resolution so that a failed message also
	// reverts any sequence bump, bytecode binding, or origin record that
	// resolving a deploy/bind/clone target wrote.
	p.Checkpoint()
	res, err := resolveTarget(p, cp, topLevel, embeddedCode, m.maxCodeBytes)
	if err != nil {
		p.Rollback()
		return nil, 0, err
	}

	// A deploy/bind/clone target is not a terminal action: the newly bound
	// alkane's constructor still runs with the Cellpack's own inputs, the
	// same as any other top-level invocation of it. ShortCircuit only
	// changes what the target resolves to, not whether __execute runs.
	if res.ShortCircuit {
		trace.Record(TraceEvent{Kind: EventCreate, Depth: stack.Depth(), Caller: baseCtx.Caller, Target: res.Resolved})
		RecordOrigin(p, res.Resolved, baseCtx.outpointKey())
	}

	nestedCtx := baseCtx.WithCall(baseCtx.Caller, res.Resolved, cellpackInputBytes(cp), baseCtx.IncomingAlkanes, baseCtx.Vout)

	if err := stack.Push(nestedCtx, p, false); err != nil {
		p.Rollback()
		return nil, 0, err
	}
	defer stack.Pop()

	// Incoming alkanes at top level originate outside the balance sheet
	// (they are the transaction's Protorunes inputs, not a transfer from
	// another alkane), so they are credited directly rather than moved
	// from the null caller, which never holds a balance to debit.
	for _, t := range nestedCtx.IncomingAlkanes {
		if topLevel {
			if err := Credit(p, res.Resolved, t.ID, t.Value); err != nil {
				p.Rollback()
				return nil, 0, err
			}
			continue
		}
		if err := MoveBalance(p, baseCtx.Caller, res.Resolved, t.ID, t.Value); err != nil {
			p.Rollback()
			return nil, 0, err
		}
	}

	code, err := LoadBytecode(p, res.Resolved)
	if err != nil {
		p.Rollback()
		return nil, 0, err
	}

	response, consumed, err := m.invoke(code, nestedCtx, p, stack, fuelLimit, trace, false)
	if err != nil {
		p.Rollback()
		m.traceFailure(trace, stack.Depth(), baseCtx.Caller, res.Resolved, consumed, err)
		return nil, consumed, err
	}

	m.applySuccess(p, CallStandard, baseCtx, nestedCtx, response)
	if err := p.Commit(); err != nil {
		return nil, consumed, err
	}
	trace.Record(TraceEvent{Kind: EventReturn, Depth: stack.Depth(), Caller: baseCtx.Caller, Target: res.Resolved, FuelUsed: consumed})
	return response, consumed, nil
}

func (m *Machine) invoke(code []byte, ctx Context, p *AtomicPointer, stack *Stack, fuelLimit uint64, trace *Trace, static bool) (*ExtendedCallResponse, uint64, error) {
	env := &ExecEnv{
		Ctx:        ctx,
		Ptr:        p,
		Stack:      stack,
		Machine:    m,
		FuelLimit:  fuelLimit,
		Trace:      trace,
		Static:     static,
	}
	return m.vm.Execute(code, env)
}

// buildNestedContext derives the child Context for a nested extcall:
// call/staticcall switch identity to the callee; delegatecall keeps the
// caller's identity and storage frame, executing the callee's code "as" the
// caller.
func (m *Machine) buildNestedContext(parent Context, kind CallKind, resolved AlkaneId, inputs []*big.Int, incoming []AlkaneTransfer) Context {
	switch kind {
	case CallDelegate:
		return parent.WithCall(parent.Caller, parent.Myself, inputsToBytes(inputs), nil, parent.Vout)
	default:
		return parent.WithCall(parent.Myself, resolved, inputsToBytes(inputs), incoming, parent.Vout)
	}
}

// loadTargetFor returns the AlkaneId whose bytecode must be loaded: for
// delegatecall this is still the resolved callee (its code runs), even
// though the execution context's Myself is the caller.
func loadTargetFor(kind CallKind, resolved AlkaneId, parent, nested Context) AlkaneId {
	return resolved
}

// applySuccess drains a successful ExtendedCallResponse: merges storage
// deltas into the active frame and moves declared alkane transfers from
// callee to caller. For delegatecall, storage deltas already land in the
// caller's namespace because nestedCtx.Myself was set to parent.Myself;
// there is nothing additional to rewrite.
func (m *Machine) applySuccess(p *AtomicPointer, kind CallKind, parentCtx, nestedCtx Context, resp *ExtendedCallResponse) {
	for _, kv := range resp.Storage {
		p.Set(contractStorageKey(nestedCtx.Myself, kv[0]), kv[1])
	}
	if kind != CallDelegate {
		for _, t := range resp.Alkanes {
			_ = MoveBalance(p, nestedCtx.Myself, parentCtx.Myself, t.ID, t.Value)
		}
	}
}

func (m *Machine) traceFailure(trace *Trace, depth int, caller, target AlkaneId, consumed uint64, err error) {
	kind := ErrAbort
	if ce, ok := err.(*CallError); ok {
		kind = ce.Kind
	}
	trace.Record(TraceEvent{Kind: EventRevert, Depth: depth, Caller: caller, Target: target, FuelUsed: consumed, Error: string(kind) + ": " + err.Error()})
}

func inputsToBytes(inputs []*big.Int) []byte {
	return EncodeInputs(inputs)
}

func cellpackInputBytes(cp Cellpack) []byte {
	return EncodeInputs(cp.Inputs)
}

// outpointKey identifies the output that created an id by height, tx index,
// and vout ("h{height}:tx{index}:v{vout}"); run records it as the origin of
// every id a deploy/bind/clone creates. It is not the "{txid}:{vout}" form
// core/indexer.go uses for /traces keys, and nothing rewrites it later.
func (c Context) outpointKey() string {
	return fmt.Sprintf("h%d:tx%d:v%d", c.Height, c.TxIndex, c.Vout)
}
