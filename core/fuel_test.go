package core_test

import (
	"testing"

	core "github.com/kungfuflex/alkanes/core"
)

func testSchedule() core.FuelSchedule {
	return core.FuelSchedule{
		BudgetPerVByte: 10,
		BudgetFloor:    100,
		PerMessageCap:  30,
		CarryOverMax:   1000,
		WeightPerByte:  2,
	}
}

func TestVirtualSize(t *testing.T) {
	if v := core.VirtualSize(0, 2); v != 0 {
		t.Fatalf("expected 0 virtual size for no payload, got %d", v)
	}
	if v := core.VirtualSize(50, 2); v != 100 {
		t.Fatalf("expected 100, got %d", v)
	}
}

func TestFuelTankBudgetFloor(t *testing.T) {
	tank := core.NewFuelTank(testSchedule(), 0, 0)
	if tank.Remaining() != 100 {
		t.Fatalf("expected floored budget 100, got %d", tank.Remaining())
	}
}

func TestFuelTankAllocateCapsAtPerMessage(t *testing.T) {
	tank := core.NewFuelTank(testSchedule(), 50, 0) // budget = 500
	alloc := tank.Allocate()
	if alloc != 30 {
		t.Fatalf("expected allocation capped at 30, got %d", alloc)
	}
	if tank.Remaining() != 470 {
		t.Fatalf("expected 470 remaining, got %d", tank.Remaining())
	}
}

func TestFuelTankAllocateCapsAtRemaining(t *testing.T) {
	tank := core.NewFuelTank(testSchedule(), 0, 0) // budget = 100 (floor)
	tank.Allocate()                                // 30
	tank.Allocate()                                // 30 -> 40 remaining
	tank.Allocate()                                // 30 -> 10 remaining
	last := tank.Allocate()
	if last != 10 {
		t.Fatalf("expected final allocation capped at remaining 10, got %d", last)
	}
	if tank.Remaining() != 0 {
		t.Fatalf("expected tank drained, got %d remaining", tank.Remaining())
	}
}

func TestFuelTankRefund(t *testing.T) {
	tank := core.NewFuelTank(testSchedule(), 0, 0)
	alloc := tank.Allocate()
	if err := tank.Refund(alloc, 5); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if tank.Remaining() != 100-alloc+(alloc-5) {
		t.Fatalf("unexpected remaining after refund: %d", tank.Remaining())
	}
}

func TestFuelTankRefundRejectsOverconsumption(t *testing.T) {
	tank := core.NewFuelTank(testSchedule(), 0, 0)
	alloc := tank.Allocate()
	if err := tank.Refund(alloc, alloc+1); err == nil {
		t.Fatalf("expected error refunding more than allocated")
	}
}

func TestFuelTankCarryOverClampedAtConstruction(t *testing.T) {
	tank := core.NewFuelTank(testSchedule(), 0, 5000)
	if tank.Remaining() != 100+1000 {
		t.Fatalf("expected carry-over clamped to 1000, got remaining %d", tank.Remaining())
	}
}

func TestPersistAndReadCarryOver(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 3)
	core.PersistCarryOver(p, 777)

	got, err := core.ReadCarryOver(p)
	if err != nil || got != 777 {
		t.Fatalf("expected carry-over 777, got %d err=%v", got, err)
	}
}

func TestReadCarryOverDefaultsToZero(t *testing.T) {
	store := core.NewMemoryStore()
	p := core.NewAtomicPointer(store, 0)
	got, err := core.ReadCarryOver(p)
	if err != nil || got != 0 {
		t.Fatalf("expected 0 carry-over with nothing persisted, got %d err=%v", got, err)
	}
}

func TestRefundPolicy(t *testing.T) {
	if got := core.RefundPolicy(100, 40, true); got != 60 {
		t.Fatalf("expected 60 unused fuel, got %d", got)
	}
	if got := core.RefundPolicy(100, 100, false); got != 0 {
		t.Fatalf("expected 0 unused fuel when fully consumed, got %d", got)
	}
}
