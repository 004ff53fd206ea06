package core

// WASM Runtime & Host Function Surface. Generalizes the wasmer-go "heavy"
// execution tier this package started from (a HeavyVM/registerHost
// four-function opcode-accounting ABI) into the full host-function table
// the alkane contract ABI requires, and replaces unchecked
// `mem.Data()[ptr:ptr+ln]` slicing with bounds-checked accessors:
// pointer-sized integers crossing the WASM boundary are unsigned 32-bit, so
// ptr+len must be validated against mem_size in u64 arithmetic to avoid a
// signed-wraparound false pass.

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// VM is the execution-tier interface: SuperLightVM/LightVM/HeavyVM style
// tiers all implementing one `Execute(bytecode, ctx) (*Receipt, error)`
// contract elsewhere in this codebase's lineage. Here the single production
// tier is WasmVM; the stubVM test double (core/extcall_test.go) implementing the same interface
// lets extcall-level tests run without a real compiled WASM module.
type VM interface {
	// Execute runs one contract's __execute against env, returning the
	// guest-declared ExtendedCallResponse and the fuel actually consumed.
	Execute(code []byte, env *ExecEnv) (*ExtendedCallResponse, uint64, error)
}

// ExecEnv is the full set of inputs one __execute invocation needs: the
// Context it runs under, the AtomicPointer it reads/writes through, the call
// stack (for __call/__delegatecall/__staticcall to push onto), the Machine
// to recurse into for nested extcalls, and the fuel ceiling for this call.
type ExecEnv struct {
	Ctx       Context
	Ptr       *AtomicPointer
	Stack     *Stack
	Machine   *Machine
	FuelLimit uint64
	Trace     *Trace
	Static    bool

	lastReturn []byte // last sub-call's return bytes, for __returndatacopy
}

// WasmVM is the wasmer-go-backed execution tier.
type WasmVM struct {
	engine *wasmer.Engine
}

// NewWasmVM constructs a WasmVM sharing one wasmer Engine across calls,
// constructed once at process start and passed down to every invocation.
func NewWasmVM(engine *wasmer.Engine) *WasmVM {
	if engine == nil {
		engine = wasmer.NewEngine()
	}
	return &WasmVM{engine: engine}
}

func (v *WasmVM) Execute(code []byte, env *ExecEnv) (*ExtendedCallResponse, uint64, error) {
	store := wasmer.NewStore(v.engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, 0, newCallError(ErrMessageDecode, fmt.Sprintf("invalid wasm module: %v", err))
	}

	hctx := &hostCtx{env: env, fuelLimit: env.FuelLimit}
	imports := registerHost(store, hctx)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, 0, newCallError(ErrMessageDecode, fmt.Sprintf("instantiate wasm: %v", err))
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, 0, newCallError(ErrMessageDecode, "wasm memory export missing")
	}
	hctx.mem = mem

	execute, err := instance.Exports.GetFunction("__execute")
	if err != nil {
		return nil, 0, newCallError(ErrMessageDecode, "__execute function required")
	}

	rc, err := execute()
	if err != nil {
		return nil, hctx.fuelUsed, newCallError(ErrAbort, err.Error())
	}
	code32, ok := rc.(int32)
	if !ok {
		return nil, hctx.fuelUsed, newCallError(ErrAbort, "__execute returned a non-i32 value")
	}
	if hctx.aborted {
		return nil, hctx.fuelUsed, newCallError(ErrAbort, "contract called __abort")
	}
	if code32 < 0 {
		return nil, hctx.fuelUsed, newCallError(ErrAbort, fmt.Sprintf("__execute returned %d", code32))
	}

	resp, err := readResponse(instance, mem)
	if err != nil {
		return nil, hctx.fuelUsed, newCallError(ErrMemoryFault, err.Error())
	}
	return resp, hctx.fuelUsed, nil
}

// readResponse retrieves the guest-declared ExtendedCallResponse through the
// `__response_ptr`/`__response_len` export convention: a pointer to the
// ExtendedCallResponse bytes plus a length, exposed at a well-known export
// pair. Contracts that return 0 but export neither function are treated as
// declaring an empty response (no transfers, no storage writes, no return
// data).
func readResponse(instance *wasmer.Instance, mem *wasmer.Memory) (*ExtendedCallResponse, error) {
	ptrFn, errP := instance.Exports.GetFunction("__response_ptr")
	lenFn, errL := instance.Exports.GetFunction("__response_len")
	if errP != nil || errL != nil {
		return &ExtendedCallResponse{}, nil
	}
	p, err := ptrFn()
	if err != nil {
		return nil, fmt.Errorf("__response_ptr: %w", err)
	}
	l, err := lenFn()
	if err != nil {
		return nil, fmt.Errorf("__response_len: %w", err)
	}
	ptr, ok1 := p.(int32)
	ln, ok2 := l.(int32)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("__response_ptr/__response_len must return i32")
	}
	raw, err := boundedRead(mem, ptr, ln)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(raw)
}

// boundedRead copies len bytes starting at ptr out of mem, validating
// ptr+len against the memory size using u64 arithmetic so a guest that
// allocates in the upper half of the 32-bit address space cannot induce a
// signed-wraparound out-of-bounds read (Design Note §9).
func boundedRead(mem *wasmer.Memory, ptr, ln int32) ([]byte, error) {
	data := mem.Data()
	start := uint64(uint32(ptr))
	size := uint64(uint32(ln))
	end := start + size
	if end > uint64(len(data)) || end < start {
		return nil, newCallError(ErrMemoryFault, fmt.Sprintf("read [%d,%d) exceeds memory size %d", start, end, len(data)))
	}
	out := make([]byte, size)
	copy(out, data[start:end])
	return out, nil
}

func boundedWrite(mem *wasmer.Memory, ptr int32, value []byte) error {
	data := mem.Data()
	start := uint64(uint32(ptr))
	end := start + uint64(len(value))
	if end > uint64(len(data)) || end < start {
		return newCallError(ErrMemoryFault, fmt.Sprintf("write [%d,%d) exceeds memory size %d", start, end, len(data)))
	}
	copy(data[start:end], value)
	return nil
}

// hostCtx is the per-invocation state the host import closures of
// registerHost close over, extended with fuel bookkeeping, the call stack,
// and a handle back to the Machine for nested extcalls.
type hostCtx struct {
	mem       *wasmer.Memory
	env       *ExecEnv
	fuelLimit uint64
	fuelUsed  uint64
	aborted   bool
}

func i32Type(n int) *wasmer.ValueTypes {
	ts := make([]wasmer.ValueKind, n)
	for i := range ts {
		ts[i] = wasmer.I32
	}
	return wasmer.NewValueTypes(ts...)
}

func fn(store *wasmer.Store, params, results int, f func(args []wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
	return wasmer.NewFunction(store, wasmer.NewFunctionType(i32Type(params), i32Type(results)), f)
}

// registerHost builds the full alkane host function import table under the
// "env" namespace.
func registerHost(store *wasmer.Store, h *hostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	charge := func(amount uint64) bool {
		if h.fuelUsed+amount > h.fuelLimit {
			h.fuelUsed = h.fuelLimit
			return false
		}
		h.fuelUsed += amount
		return true
	}

	requestStorage := fn(store, 1, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !charge(hostCallFuelCost) {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		key, err := readGuestKey(h, args[0].I32())
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		v, ok, err := h.env.Ptr.Get(contractStorageKey(h.env.Ctx.Myself, key))
		if err != nil || !ok {
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(v)))}, nil
	})

	loadStorage := fn(store, 2, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !charge(hostCallFuelCost) {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		key, err := readGuestKey(h, args[0].I32())
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		v, ok, err := h.env.Ptr.Get(contractStorageKey(h.env.Ctx.Myself, key))
		if err != nil || !ok {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := boundedWrite(h.mem, args[1].I32(), v); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(v)))}, nil
	})

	requestContext := fn(store, 0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return []wasmer.Value{wasmer.NewI32(int32(len(EncodeContext(h.env.Ctx))))}, nil
	})
	loadContext := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_ = boundedWrite(h.mem, args[0].I32(), EncodeContext(h.env.Ctx))
		return nil, nil
	})

	requestTransaction := fn(store, 0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return []wasmer.Value{wasmer.NewI32(int32(len(h.env.Ctx.TransactionBytes)))}, nil
	})
	loadTransaction := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_ = boundedWrite(h.mem, args[0].I32(), h.env.Ctx.TransactionBytes)
		return nil, nil
	})

	requestBlock := fn(store, 0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return []wasmer.Value{wasmer.NewI32(int32(len(h.env.Ctx.BlockBytes)))}, nil
	})
	loadBlock := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_ = boundedWrite(h.mem, args[0].I32(), h.env.Ctx.BlockBytes)
		return nil, nil
	})

	returndatacopy := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_ = boundedWrite(h.mem, args[0].I32(), h.env.lastReturn)
		return nil, nil
	})

	sequence := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		seq, err := ReadSequence(h.env.Ptr)
		if err != nil {
			return nil, nil
		}
		_ = boundedWrite(h.mem, args[0].I32(), leftPad16(seq.Bytes()))
		return nil, nil
	})

	fuel := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		remaining := uint64(0)
		if h.fuelLimit > h.fuelUsed {
			remaining = h.fuelLimit - h.fuelUsed
		}
		_ = boundedWrite(h.mem, args[0].I32(), u64LEBytes(remaining))
		return nil, nil
	})

	height := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_ = boundedWrite(h.mem, args[0].I32(), u64LEBytes(h.env.Ctx.Height))
		return nil, nil
	})

	balance := fn(store, 3, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		who, err1 := readGuestID(h, args[0].I32())
		what, err2 := readGuestID(h, args[1].I32())
		if err1 != nil || err2 != nil {
			return nil, nil
		}
		bal, err := BalanceOf(h.env.Ptr, who, what)
		if err != nil {
			return nil, nil
		}
		_ = boundedWrite(h.mem, args[2].I32(), leftPad16(bal.Bytes()))
		return nil, nil
	})

	// __log(ptr): ptr is a length-prefixed buffer, the same convention
	// __request_storage's key argument and the __call family's
	// cellpack/incoming buffers use.
	logFn := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		data, err := readLengthPrefixed(h.mem, args[0].I32())
		if err == nil {
			h.env.Trace.Record(TraceEvent{Kind: EventLog, Depth: h.env.Stack.Depth(), Caller: h.env.Ctx.Caller, Target: h.env.Ctx.Myself, LogData: data})
		}
		return nil, nil
	})

	call := fn(store, 3, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return []wasmer.Value{wasmer.NewI32(h.doExtcall(CallStandard, args[0].I32(), args[1].I32(), args[2].I32()))}, nil
	})
	delegatecall := fn(store, 3, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return []wasmer.Value{wasmer.NewI32(h.doExtcall(CallDelegate, args[0].I32(), args[1].I32(), args[2].I32()))}, nil
	})
	staticcall := fn(store, 3, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return []wasmer.Value{wasmer.NewI32(h.doExtcall(CallStatic, args[0].I32(), args[1].I32(), args[2].I32()))}, nil
	})

	abort := fn(store, 0, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		h.aborted = true
		return nil, nil
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"__request_storage":     requestStorage,
		"__load_storage":        loadStorage,
		"__request_context":     requestContext,
		"__load_context":        loadContext,
		"__request_transaction": requestTransaction,
		"__load_transaction":    loadTransaction,
		"__request_block":       requestBlock,
		"__load_block":          loadBlock,
		"__returndatacopy":      returndatacopy,
		"__sequence":            sequence,
		"__fuel":                fuel,
		"__height":              height,
		"__balance":             balance,
		"__log":                 logFn,
		"__call":                call,
		"__delegatecall":        delegatecall,
		"__staticcall":          staticcall,
		"__abort":               abort,
	})

	return imports
}

// hostCallFuelCost is charged by __request_storage, __load_storage, and each
// __call/__delegatecall/__staticcall as a coarse approximation of wasmi's
// per-instruction metering. wasmer-go does no per-instruction metering, so
// these charges are the only fuel a contract's own execution consumes.
const hostCallFuelCost = 1

// doExtcall decodes the guest's (cellpack, incoming transfers) argument
// pair out of linear memory and recurses into the Machine, returning 0 on
// success or a negative status on failure.
func (h *hostCtx) doExtcall(kind CallKind, cellpackPtr, incomingPtr, fuelLimit int32) int32 {
	if !chargeFixed(h, hostCallFuelCost) {
		return -1
	}
	cpBytes, err := readLengthPrefixed(h.mem, cellpackPtr)
	if err != nil {
		return -1
	}
	cp, err := DecodeCellpack(cpBytes)
	if err != nil {
		return -1
	}
	incBytes, err := readLengthPrefixed(h.mem, incomingPtr)
	if err != nil {
		return -1
	}
	incoming, err := DecodeTransfers(incBytes)
	if err != nil {
		return -1
	}

	limit := uint64(uint32(fuelLimit))
	remaining := uint64(0)
	if h.fuelLimit > h.fuelUsed {
		remaining = h.fuelLimit - h.fuelUsed
	}
	if limit > remaining {
		limit = remaining
	}

	resp, consumed, err := h.env.Machine.Call(h.env.Ptr, h.env.Stack, h.env.Ctx, kind, cp, incoming, limit, h.env.Trace)
	h.fuelUsed += consumed
	if err != nil {
		return -1
	}
	h.env.lastReturn = resp.Data
	return 0
}

func chargeFixed(h *hostCtx, amount uint64) bool {
	if h.fuelUsed+amount > h.fuelLimit {
		h.fuelUsed = h.fuelLimit
		return false
	}
	h.fuelUsed += amount
	return true
}

// readLengthPrefixed reads a u32-big-endian length prefix followed by that
// many bytes, the convention __call/__delegatecall/__staticcall arguments
// use for the variable-length cellpack/incoming-transfers buffers.
func readLengthPrefixed(mem *wasmer.Memory, ptr int32) ([]byte, error) {
	lenBytes, err := boundedRead(mem, ptr, 4)
	if err != nil {
		return nil, err
	}
	n := int32(uint32(lenBytes[0])<<24 | uint32(lenBytes[1])<<16 | uint32(lenBytes[2])<<8 | uint32(lenBytes[3]))
	return boundedRead(mem, ptr+4, n)
}

func readGuestKey(h *hostCtx, ptr int32) ([]byte, error) {
	return readLengthPrefixed(h.mem, ptr)
}

func readGuestID(h *hostCtx, ptr int32) (AlkaneId, error) {
	b, err := boundedRead(h.mem, ptr, 32)
	if err != nil {
		return AlkaneId{}, err
	}
	return ParseAlkaneId(b)
}

func leftPad16(b []byte) []byte {
	out := make([]byte, 16)
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(out[16-len(b):], b)
	return out
}

func u64LEBytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}
