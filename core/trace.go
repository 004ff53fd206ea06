package core

// Trace export to "/traces/{outpoint}". The wire encoding of a trace entry
// is meant to be a stable on-chain artifact that matches a reference
// implementation bit-for-bit; since no reference bytes are available here
// (see DESIGN.md, "core/trace.go — Trace export"), TraceEvent defines
// its own deterministic encoding and documents it as this implementation's
// own choice rather than a claim of bit-for-bit compatibility.

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventKind distinguishes the shape of one TraceEvent.
type EventKind string

const (
	EventCall     EventKind = "call"
	EventReturn   EventKind = "return"
	EventRevert   EventKind = "revert"
	EventLog      EventKind = "log"
	EventCreate   EventKind = "create"
)

// TraceEvent is one node in the call tree recorded for an outpoint when
// tracing is enabled for the encompassing block.
type TraceEvent struct {
	Kind      EventKind `json:"kind"`
	Depth     int       `json:"depth"`
	Caller    AlkaneId  `json:"caller"`
	Target    AlkaneId  `json:"target"`
	FuelUsed  uint64    `json:"fuel_used"`
	Error     string    `json:"error,omitempty"`
	LogData   []byte    `json:"log_data,omitempty"`
}

// Trace is the full call tree for one Protostone message, keyed by the
// correlation id assigned when the trace is opened.
type Trace struct {
	ID     string       `json:"id"`
	Events []TraceEvent `json:"events"`
}

// NewTrace opens a trace correlated by a fresh uuid; the id is a
// process-local diagnostic aid, never part of consensus state — only the
// persisted /traces/{outpoint} bytes are the stable artifact.
func NewTrace() *Trace {
	return &Trace{ID: uuid.NewString()}
}

// Record appends one event to the trace.
func (t *Trace) Record(ev TraceEvent) {
	if t == nil {
		return
	}
	t.Events = append(t.Events, ev)
}

// Encode produces the stable on-chain byte encoding stored at
// /traces/{outpoint}. JSON is used as a deliberately simple, order-preserving
// encoding (object field order is fixed by the struct tags above); migrating
// to a more compact format later would be a consensus-visible change.
func (t *Trace) Encode() ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(t.Events)
	if err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	return b, nil
}

// DecodeTrace is the inverse of Encode, used by the view surface's
// trace(outpoint) query.
func DecodeTrace(b []byte) (*Trace, error) {
	var events []TraceEvent
	if err := json.Unmarshal(b, &events); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return &Trace{Events: events}, nil
}
