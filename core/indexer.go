package core

// Indexer loop: processes one Bitcoin block end to end — installing genesis
// contracts at the activation height, extracting every Cellpack-bearing
// Protostone, running each through the Extcall Machine inside a single
// AtomicPointer scoped to the block, merging balances and traces, and
// flushing the accumulated writes as one atomic batch at the block height.

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

// Indexer owns the long-lived collaborators a running node needs to process
// blocks: the storage backend, the network's genesis/fuel parameters, the
// Extcall Machine, and the Protorunes balance ledger this indexer consumes
// rather than reimplements.
type Indexer struct {
	store         KVStore
	network       NetworkParams
	schedule      FuelSchedule
	machine       *Machine
	ledger        ProtorunesLedger
	reserved      []ReservedContract
	tracesEnabled bool
	fuelCarry     uint64
	log           *log.Entry
}

// NewIndexer constructs an Indexer. fuelCarry seeds the first block's tank
// (normally 0 at cold start, or the prior process's persisted carry-over).
func NewIndexer(store KVStore, network NetworkParams, schedule FuelSchedule, machine *Machine, ledger ProtorunesLedger, reserved []ReservedContract, tracesEnabled bool, fuelCarry uint64) *Indexer {
	return &Indexer{
		store:         store,
		network:       network,
		schedule:      schedule,
		machine:       machine,
		ledger:        ledger,
		reserved:      reserved,
		tracesEnabled: tracesEnabled,
		fuelCarry:     fuelCarry,
		log:           log.WithField("component", "indexer"),
	}
}

// FuelCarry reports the unconsumed fuel rolled forward into the next block,
// for a caller that wants to persist it across process restarts.
func (ix *Indexer) FuelCarry() uint64 { return ix.fuelCarry }

// ProcessBlock indexes one block at the given height. It returns an error
// for a BackendError (storage failure) or a failed genesis installation;
// any individual message failure is recorded in its trace and does not
// abort the block.
func (ix *Indexer) ProcessBlock(block *wire.MsgBlock, height uint64) error {
	ptr := NewAtomicPointer(ix.store, height)

	if height == ix.network.ActivationHeight {
		if err := InstallGenesis(ptr, ix.network, ix.reserved); err != nil {
			return fmt.Errorf("install genesis at height %d: %w", height, err)
		}
	}

	messages, err := ExtractMessages(block)
	if err != nil {
		return fmt.Errorf("extract messages at height %d: %w", height, err)
	}

	totalPayload := 0
	for _, m := range messages {
		totalPayload += m.PayloadLen
	}
	tank := NewFuelTank(ix.schedule, VirtualSize(totalPayload, ix.schedule.WeightPerByte), ix.fuelCarry)

	blockBytes, err := encodeBlockHeader(block)
	if err != nil {
		return fmt.Errorf("encode block header at height %d: %w", height, err)
	}

	stack := NewStack(ix.network.MaxCallDepth)

	for _, msg := range messages {
		if err := ix.processMessage(ptr, stack, tank, block, blockBytes, height, msg); err != nil {
			if IsBackendError(err) {
				return fmt.Errorf("height %d tx %d vout %d: %w", height, msg.TxIndex, msg.Vout, err)
			}
			ix.log.WithField("height", height).WithField("tx_index", msg.TxIndex).WithField("vout", msg.Vout).WithError(err).Warn("message failed")
		}
	}

	ix.fuelCarry = tank.CarryOver()
	PersistCarryOver(ptr, ix.fuelCarry)

	batch, err := ix.store.BeginBatch()
	if err != nil {
		return fmt.Errorf("begin batch at height %d: %w", height, err)
	}
	ptr.FlushToBatch(batch)
	if err := batch.Commit(height); err != nil {
		batch.Discard()
		return fmt.Errorf("commit batch at height %d: %w", height, err)
	}
	return nil
}

func (ix *Indexer) processMessage(ptr *AtomicPointer, stack *Stack, tank *FuelTank, block *wire.MsgBlock, blockBytes []byte, height uint64, msg ExtractedMessage) error {
	outpoint := fmt.Sprintf("%s:%d", block.Transactions[msg.TxIndex].TxHash().String(), msg.Vout)

	incoming, err := ix.ledger.UnallocatedIncoming(outpoint)
	if err != nil {
		return newCallError(ErrBackend, err.Error())
	}

	txBytes, err := encodeTx(block.Transactions[msg.TxIndex])
	if err != nil {
		return newCallError(ErrMessageDecode, err.Error())
	}

	baseCtx := Context{
		Caller:           NullCaller(),
		TransactionBytes: txBytes,
		BlockBytes:       blockBytes,
		Height:           height,
		TxIndex:          msg.TxIndex,
		Vout:             msg.Vout,
		Pointer:          msg.Pointer,
		RefundPointer:    msg.RefundPointer,
		IncomingAlkanes:  incoming,
	}

	var trace *Trace
	if ix.tracesEnabled {
		trace = NewTrace()
	}

	fuelLimit := tank.Allocate()
	resp, consumed, callErr := ix.machine.Dispatch(ptr, stack, baseCtx, msg.Cellpack, msg.EmbeddedCode, fuelLimit, trace)
	if err := tank.Refund(fuelLimit, consumed); err != nil {
		ix.log.WithError(err).Warn("fuel refund accounting mismatch")
	}

	if trace != nil {
		if encoded, encErr := trace.Encode(); encErr == nil {
			ptr.Set(traceKey(outpoint), encoded)
		}
	}

	if callErr != nil {
		return callErr
	}

	if resp != nil && len(resp.Alkanes) > 0 {
		destOutpoint := fmt.Sprintf("%s:%d", block.Transactions[msg.TxIndex].TxHash().String(), msg.Pointer)
		if err := ix.ledger.CreditOutput(destOutpoint, resp.Alkanes); err != nil {
			return newCallError(ErrBackend, err.Error())
		}
	}
	return nil
}

func traceKey(outpoint string) []byte {
	return append([]byte("/traces/"), []byte(outpoint)...)
}

// encodeBlockHeader serializes just the block header, the bytes
// __request_block/__load_block expose to a running contract — a contract
// observes the header it executed under, not the full block contents.
func encodeBlockHeader(block *wire.MsgBlock) ([]byte, error) {
	var buf bytes.Buffer
	if err := block.Header.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
