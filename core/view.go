package core

// View Surface: read-only re-execution and storage inspection exposed over
// HTTP/JSON. A view query opens a fresh AtomicPointer over committed state
// and discards every write it makes; nothing a view query does is ever
// flushed to the backing KVStore.

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ViewSurface answers read-only queries against committed indexer state at
// a caller-chosen height, simulating messages without persisting any
// effect.
type ViewSurface struct {
	store      KVStore
	network    NetworkParams
	machine    *Machine
	ledger     ProtorunesLedger
	staticFuel uint64
}

// NewViewSurface constructs a ViewSurface sharing the indexer's storage
// backend, machine, and balance ledger. staticFuel bounds every simulate
// call, since a view query has no block-scoped FuelTank to allocate from.
func NewViewSurface(store KVStore, network NetworkParams, machine *Machine, ledger ProtorunesLedger, staticFuel uint64) *ViewSurface {
	return &ViewSurface{store: store, network: network, machine: machine, ledger: ledger, staticFuel: staticFuel}
}

// Router builds the chi mux exposing every view query as a JSON endpoint.
func (v *ViewSurface) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/simulate", v.handleSimulate)
	r.Post("/multisimulate", v.handleMultiSimulate)
	r.Get("/inventory/{id}", v.handleInventory)
	r.Get("/storage/{id}/{key}", v.handleStorageAt)
	r.Get("/bytecode/{id}", v.handleBytecode)
	r.Get("/trace/{outpoint}", v.handleTrace)
	r.Get("/sequence", v.handleSequence)
	r.Get("/fuel", v.handleFuelRemaining)
	r.Get("/alkaneidtooutpoint/{id}", v.handleIDToOutpoint)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// simulateRequest is the JSON body of /simulate and one element of
// /multisimulate: a Cellpack target and inputs plus the height to read
// committed state at.
type simulateRequest struct {
	Height   uint64   `json:"height"`
	Target   [2]int64 `json:"target"`
	Inputs   []string `json:"inputs"` // decimal-string u128 values
	Incoming []struct {
		ID    [2]int64 `json:"id"`
		Value string   `json:"value"`
	} `json:"incoming"`
}

func (req simulateRequest) toCellpack() (Cellpack, error) {
	inputs := make([]*big.Int, 0, len(req.Inputs))
	for _, s := range req.Inputs {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return Cellpack{}, newCallError(ErrMessageDecode, "invalid decimal input: "+s)
		}
		inputs = append(inputs, n)
	}
	return Cellpack{Target: NewAlkaneId(req.Target[0], req.Target[1]), Inputs: inputs}, nil
}

func (req simulateRequest) toIncoming() ([]AlkaneTransfer, error) {
	out := make([]AlkaneTransfer, 0, len(req.Incoming))
	for _, in := range req.Incoming {
		v, ok := new(big.Int).SetString(in.Value, 10)
		if !ok {
			return nil, newCallError(ErrMessageDecode, "invalid decimal value: "+in.Value)
		}
		out = append(out, AlkaneTransfer{ID: NewAlkaneId(in.ID[0], in.ID[1]), Value: v})
	}
	return out, nil
}

func (v *ViewSurface) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, consumed, err := v.simulateOne(req)
	if err != nil {
		writeError(w, http.StatusOK, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fuel_used": consumed,
		"data":      hex.EncodeToString(resp.Data),
		"alkanes":   resp.Alkanes,
	})
}

func (v *ViewSurface) handleMultiSimulate(w http.ResponseWriter, r *http.Request) {
	var reqs []simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	results := make([]map[string]any, 0, len(reqs))
	for _, req := range reqs {
		resp, consumed, err := v.simulateOne(req)
		if err != nil {
			results = append(results, map[string]any{"error": err.Error()})
			continue
		}
		results = append(results, map[string]any{
			"fuel_used": consumed,
			"data":      hex.EncodeToString(resp.Data),
			"alkanes":   resp.Alkanes,
		})
	}
	writeJSON(w, http.StatusOK, results)
}

func (v *ViewSurface) simulateOne(req simulateRequest) (*ExtendedCallResponse, uint64, error) {
	cp, err := req.toCellpack()
	if err != nil {
		return nil, 0, err
	}
	incoming, err := req.toIncoming()
	if err != nil {
		return nil, 0, err
	}

	ptr := NewAtomicPointer(v.store, req.Height)
	stack := NewStack(v.network.MaxCallDepth)
	ctx := Context{
		Caller:          NullCaller(),
		Inputs:          EncodeInputs(cp.Inputs),
		IncomingAlkanes: incoming,
		Height:          req.Height,
	}
	return v.machine.Dispatch(ptr, stack, ctx, cp, nil, v.staticFuel, nil)
}

func parseIDParam(s string) (AlkaneId, error) {
	var block, tx int64
	if _, err := parseColonPair(s, &block, &tx); err != nil {
		return AlkaneId{}, newCallError(ErrMessageDecode, "id must be \"block:tx\": "+s)
	}
	return NewAlkaneId(block, tx), nil
}

func parseColonPair(s string, a, b *int64) (bool, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			x, err := strconv.ParseInt(s[:i], 10, 64)
			if err != nil {
				return false, err
			}
			y, err := strconv.ParseInt(s[i+1:], 10, 64)
			if err != nil {
				return false, err
			}
			*a, *b = x, y
			return true, nil
		}
	}
	return false, newCallError(ErrMessageDecode, "missing ':' separator")
}

func (v *ViewSurface) handleInventory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	height, _ := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	ptr := NewAtomicPointer(v.store, height)
	held, err := Inventory(ptr, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, held)
}

func (v *ViewSurface) handleStorageAt(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key, err := hex.DecodeString(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	height, _ := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	ptr := NewAtomicPointer(v.store, height)
	val, ok, err := ContractStorage(ptr, id, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": ok, "value": hex.EncodeToString(val)})
}

func (v *ViewSurface) handleBytecode(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	height, _ := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	ptr := NewAtomicPointer(v.store, height)
	code, err := LoadBytecode(ptr, id)
	if err != nil {
		writeError(w, http.StatusOK, err)
		return
	}
	hash, _, err := CodeHash(ptr, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"bytecode":  hex.EncodeToString(code),
		"code_hash": hex.EncodeToString(hash),
	})
}

func (v *ViewSurface) handleTrace(w http.ResponseWriter, r *http.Request) {
	outpoint := chi.URLParam(r, "outpoint")
	height, _ := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	ptr := NewAtomicPointer(v.store, height)
	raw, ok, err := ptr.Get(traceKey(outpoint))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, newCallError(ErrTargetResolution, "no trace for outpoint"))
		return
	}
	trace, err := DecodeTrace(raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (v *ViewSurface) handleSequence(w http.ResponseWriter, r *http.Request) {
	height, _ := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	ptr := NewAtomicPointer(v.store, height)
	seq, err := ReadSequence(ptr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sequence": seq.String()})
}

// handleFuelRemaining answers the "fuel remaining" view query: the
// carry-over fuel recorded by the most recently committed block as of
// height, i.e. what the next block's tank will be seeded with.
func (v *ViewSurface) handleFuelRemaining(w http.ResponseWriter, r *http.Request) {
	height, _ := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	ptr := NewAtomicPointer(v.store, height)
	carry, err := ReadCarryOver(ptr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"fuel_remaining": carry})
}

func (v *ViewSurface) handleIDToOutpoint(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	height, _ := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	ptr := NewAtomicPointer(v.store, height)
	outpoint, ok, err := Origin(ptr, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": ok, "outpoint": outpoint})
}
