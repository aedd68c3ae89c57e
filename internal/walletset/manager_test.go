package walletset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange"
	"github.com/betbot/copycat/internal/store"
	"github.com/betbot/copycat/pkg/logger"
)

const (
	walletA = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"
	walletB = "0x8b8d1e1f5b5f8e6f0a3c2d4e5f60718293a4b5c6"
)

func init() {
	logger.Init(logger.Config{Level: "error"})
}

func writeWalletFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallets.txt")
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatalf("write wallet file: %v", err)
	}
	return path
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sourceTrade(wallet, key string, ts int64) domain.SourceTrade {
	return domain.SourceTrade{
		Wallet:    wallet,
		Market:    "cond-1",
		Asset:     "token-1",
		Side:      domain.SideBuy,
		Size:      decimal.NewFromInt(10),
		Price:     decimal.NewFromFloat(0.5),
		Timestamp: ts,
		TxHash:    key,
	}
}

func TestLoadWalletList(t *testing.T) {
	path := writeWalletFile(t, `
# watched wallets
0x56687BF447db6ffa42FFe2204a05EDAa20F55839
not-an-address
0x56687bf447db6ffa42ffe2204a05edaa20f55839

`)
	got, err := LoadWalletList(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 wallet after dedup and validation, got %v", got)
	}
	if got[0] != walletA {
		t.Fatalf("expected lowercased address, got %s", got[0])
	}
}

func TestCycleNewWalletBaseline(t *testing.T) {
	s := openTestStore(t)
	mock := exchange.NewMockAdapter()
	mock.Trades[walletA] = []domain.SourceTrade{
		sourceTrade(walletA, "0xh2", 200),
		sourceTrade(walletA, "0xh1", 100),
	}
	path := writeWalletFile(t, walletA+"\n")
	m := NewManager(s, mock, path)

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	w, err := s.GetWallet(context.Background(), walletA)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w == nil || w.Status != domain.WalletStatusActive {
		t.Fatalf("expected active wallet, got %+v", w)
	}
	if w.BaselineWatermark != 200 {
		t.Fatalf("expected watermark 200, got %d", w.BaselineWatermark)
	}

	// history snapshot is recorded but never executed
	for _, key := range []string{"0xh1", "0xh2"} {
		tr, err := s.GetTrade(context.Background(), key)
		if err != nil {
			t.Fatalf("get trade %s: %v", key, err)
		}
		if tr == nil || tr.State != domain.StateSkipped {
			t.Fatalf("expected skipped history trade %s, got %+v", key, tr)
		}
	}
}

func TestCycleBaselineFailureRetried(t *testing.T) {
	s := openTestStore(t)
	mock := exchange.NewMockAdapter()
	mock.ErrorOnNext["FetchTradeHistory"] = &exchange.NetworkError{Op: "fetch trades", Err: context.DeadlineExceeded}
	mock.Trades[walletA] = []domain.SourceTrade{sourceTrade(walletA, "0xh1", 100)}
	path := writeWalletFile(t, walletA+"\n")
	m := NewManager(s, mock, path)

	// first cycle: fetch fails, wallet stays pending
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	w, _ := s.GetWallet(context.Background(), walletA)
	if w.Status != domain.WalletStatusPendingBaseline {
		t.Fatalf("expected pending wallet after failed baseline, got %s", w.Status)
	}

	// second cycle: baseline succeeds
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	w, _ = s.GetWallet(context.Background(), walletA)
	if w.Status != domain.WalletStatusActive || w.BaselineWatermark != 100 {
		t.Fatalf("expected active wallet after retry, got %+v", w)
	}
}

func TestCycleRemoveAndReAdd(t *testing.T) {
	s := openTestStore(t)
	mock := exchange.NewMockAdapter()
	mock.Trades[walletA] = []domain.SourceTrade{sourceTrade(walletA, "0xh1", 100)}
	mock.Trades[walletB] = nil
	ctx := context.Background()

	path := writeWalletFile(t, walletA+"\n"+walletB+"\n")
	m := NewManager(s, mock, path)
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// drop walletA from the list
	m.listPath = writeWalletFile(t, walletB+"\n")
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle after removal: %v", err)
	}
	w, _ := s.GetWallet(ctx, walletA)
	if w.Status != domain.WalletStatusInactive {
		t.Fatalf("expected inactive wallet, got %s", w.Status)
	}
	// history must survive removal
	tr, _ := s.GetTrade(ctx, "0xh1")
	if tr == nil {
		t.Fatalf("expected history to be kept for removed wallet")
	}

	// re-add: a fresh baseline is taken, new history between the two
	// periods is skipped rather than copied
	mock.Trades[walletA] = []domain.SourceTrade{
		sourceTrade(walletA, "0xh3", 300),
		sourceTrade(walletA, "0xh1", 100),
	}
	m.listPath = writeWalletFile(t, walletA+"\n"+walletB+"\n")
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle after re-add: %v", err)
	}
	w, _ = s.GetWallet(ctx, walletA)
	if w.Status != domain.WalletStatusActive || w.BaselineWatermark != 300 {
		t.Fatalf("expected reactivated wallet with fresh watermark, got %+v", w)
	}
	tr, _ = s.GetTrade(ctx, "0xh3")
	if tr == nil || tr.State != domain.StateSkipped {
		t.Fatalf("expected interim trade to be skipped, got %+v", tr)
	}
}
