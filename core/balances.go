package core

// Balance sheet: "/alkanes/{id}/balances/{other_id}" and
// "/alkanes/{id}/inventory/". Conservation is enforced by always moving
// value through Credit/Debit pairs rather than independent writes.

import (
	"fmt"
	"math/big"
)

func balanceKey(id, other AlkaneId) []byte {
	return append(append([]byte("/alkanes/"), append(id.Bytes(), []byte("/balances/")...)...), other.Bytes()...)
}

func inventoryKey(id AlkaneId) []byte {
	return append([]byte("/alkanes/"), append(id.Bytes(), []byte("/inventory/")...)...)
}

// BalanceOf reads how much of token held flows to owner.
func BalanceOf(p *AtomicPointer, owner, held AlkaneId) (*big.Int, error) {
	v, ok, err := p.Get(balanceKey(owner, held))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(v), nil
}

func setBalance(p *AtomicPointer, owner, held AlkaneId, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("balance: negative amount for %s holding %s", owner, held)
	}
	if amount.Sign() == 0 {
		p.Delete(balanceKey(owner, held))
		return nil
	}
	prev, err := BalanceOf(p, owner, held)
	if err != nil {
		return err
	}
	p.Set(balanceKey(owner, held), amount.Bytes())
	if prev.Sign() == 0 {
		p.AppendToList(inventoryKey(owner), held.Bytes())
	}
	return nil
}

// Credit adds amount of token held to owner's balance sheet, appending held
// to owner's inventory the first time owner holds any of it.
func Credit(p *AtomicPointer, owner, held AlkaneId, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	prev, err := BalanceOf(p, owner, held)
	if err != nil {
		return err
	}
	return setBalance(p, owner, held, new(big.Int).Add(prev, amount))
}

// Debit subtracts amount of token held from owner's balance sheet, failing
// if the balance would go negative.
func Debit(p *AtomicPointer, owner, held AlkaneId, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	prev, err := BalanceOf(p, owner, held)
	if err != nil {
		return err
	}
	if prev.Cmp(amount) < 0 {
		return fmt.Errorf("balance: insufficient %s held by %s: have %s, need %s", held, owner, prev, amount)
	}
	return setBalance(p, owner, held, new(big.Int).Sub(prev, amount))
}

// MoveBalance debits from `from` and credits `to`, the conservation-
// preserving primitive behind every transfer (call, return, revert) in the
// Extcall Machine.
func MoveBalance(p *AtomicPointer, from, to AlkaneId, held AlkaneId, amount *big.Int) error {
	if from.Equal(to) {
		return nil
	}
	if err := Debit(p, from, held, amount); err != nil {
		return err
	}
	return Credit(p, to, held, amount)
}

// Inventory lists every token id owner has ever held a nonzero balance of,
// for the view surface's inventory(id) query. The append-list records every
// id owner started holding at least once; a caller wanting only current
// nonzero balances should filter the result through BalanceOf.
func Inventory(p *AtomicPointer, owner AlkaneId) ([]AlkaneId, error) {
	raw, err := p.ListAppended(inventoryKey(owner))
	if err != nil {
		return nil, err
	}
	out := make([]AlkaneId, 0, len(raw))
	for _, b := range raw {
		id, err := ParseAlkaneId(b)
		if err != nil {
			return nil, fmt.Errorf("inventory: corrupt entry for %s: %w", owner, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// ProtorunesLedger is the consumed balance-indexer primitive: the Protorunes
// layer this indexer sits atop of, providing unallocated incoming balances
// per outpoint and accepting credits to resolved output pointers. The real
// implementation lives outside this module; InMemoryProtorunesLedger is a
// reference stand-in sufficient to drive the indexer loop end to end in
// tests.
type ProtorunesLedger interface {
	// UnallocatedIncoming returns the (id, amount) pairs currently credited
	// to outpoint, i.e. the balances this transaction's inputs carry in.
	UnallocatedIncoming(outpoint string) ([]AlkaneTransfer, error)
	// CreditOutput credits transfers to the given output pointer.
	CreditOutput(outpoint string, transfers []AlkaneTransfer) error
}

// InMemoryProtorunesLedger is a minimal in-memory ProtorunesLedger. The
// tests use it, and cmd/alkanesd wires it into both its index and serve
// commands; the credits it records live only in process memory.
type InMemoryProtorunesLedger struct {
	incoming map[string][]AlkaneTransfer
	credited map[string][]AlkaneTransfer
}

func NewInMemoryProtorunesLedger() *InMemoryProtorunesLedger {
	return &InMemoryProtorunesLedger{
		incoming: make(map[string][]AlkaneTransfer),
		credited: make(map[string][]AlkaneTransfer),
	}
}

func (l *InMemoryProtorunesLedger) SeedIncoming(outpoint string, transfers []AlkaneTransfer) {
	l.incoming[outpoint] = transfers
}

func (l *InMemoryProtorunesLedger) UnallocatedIncoming(outpoint string) ([]AlkaneTransfer, error) {
	return l.incoming[outpoint], nil
}

func (l *InMemoryProtorunesLedger) CreditOutput(outpoint string, transfers []AlkaneTransfer) error {
	l.credited[outpoint] = append(l.credited[outpoint], transfers...)
	return nil
}

func (l *InMemoryProtorunesLedger) Credited(outpoint string) []AlkaneTransfer {
	return l.credited[outpoint]
}
