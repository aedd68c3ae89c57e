package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTradeKeyPrefersTxHash(t *testing.T) {
	tr := SourceTrade{
		Wallet:    "0xabc",
		Asset:     "token-1",
		Side:      SideBuy,
		Size:      decimal.NewFromInt(10),
		Price:     decimal.NewFromFloat(0.5),
		Timestamp: 100,
		TxHash:    "0xhash",
	}
	if tr.Key() != "0xhash" {
		t.Fatalf("expected tx hash as key, got %s", tr.Key())
	}
}

func TestTradeKeyFallbackDeterministic(t *testing.T) {
	tr := SourceTrade{
		Wallet:    "0xabc",
		Asset:     "token-1",
		Side:      SideBuy,
		Size:      decimal.NewFromInt(10),
		Price:     decimal.NewFromFloat(0.5),
		Timestamp: 100,
	}
	k1 := tr.Key()
	k2 := tr.Key()
	if k1 == "" || k1 != k2 {
		t.Fatalf("fallback key must be deterministic, got %q and %q", k1, k2)
	}

	// any differing field yields a different key
	other := tr
	other.Timestamp = 101
	if other.Key() == k1 {
		t.Fatalf("different trades must not collide")
	}
	other = tr
	other.Side = SideSell
	if other.Key() == k1 {
		t.Fatalf("different sides must not collide")
	}
}

func TestExecutionStateTerminal(t *testing.T) {
	terminal := []ExecutionState{StateFilled, StateFailed, StateSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	open := []ExecutionState{StateDiscovered, StateQueued, StateSubmitted, StateTimedOut}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}
