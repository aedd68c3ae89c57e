package executor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange"
	"github.com/betbot/copycat/internal/sizing"
	"github.com/betbot/copycat/internal/store"
	"github.com/betbot/copycat/pkg/logger"
)

const wallet = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"

func init() {
	logger.Init(logger.Config{Level: "error"})
}

func setup(t *testing.T, mode domain.OrderMode) (*store.Store, *exchange.MockAdapter, *Loop) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mock := exchange.NewMockAdapter()
	sizingCfg := sizing.Config{OrderMode: mode, SizeMode: sizing.ModeProportional}
	if mode == domain.OrderModeMarket {
		sizingCfg.SizeMode = sizing.ModeFixedNotional
		sizingCfg.FixedAmount = decimal.NewFromInt(1)
	}
	loop := NewLoop(s, mock, sizingCfg, nil, Config{
		Workers:      1,
		LimitTimeout: 60 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		RetryBackoff: 10 * time.Millisecond,
	})
	return s, mock, loop
}

func queuedRequest(t *testing.T, s *store.Store, mode domain.OrderMode, key string) domain.CopyOrderRequest {
	t.Helper()
	trade := domain.SourceTrade{
		Wallet:    wallet,
		Market:    "cond-1",
		Asset:     "token-1",
		Side:      domain.SideBuy,
		Size:      decimal.NewFromInt(10),
		Price:     decimal.NewFromFloat(0.5),
		Timestamp: 100,
		TxHash:    key,
	}
	raw, _ := json.Marshal(&trade)
	if _, err := s.InsertTradeIfAbsent(context.Background(), key, wallet, domain.StateQueued, string(raw)); err != nil {
		t.Fatalf("insert trade: %v", err)
	}
	return domain.CopyOrderRequest{
		TradeKey:     key,
		Market:       trade.Market,
		Asset:        trade.Asset,
		Side:         trade.Side,
		SourceSize:   trade.Size,
		SourcePrice:  trade.Price,
		Mode:         mode,
		TargetSize:   trade.Size,
		TargetAmount: trade.Size.Mul(trade.Price),
	}
}

func waitForState(t *testing.T, s *store.Store, key string, want domain.ExecutionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tr, err := s.GetTrade(context.Background(), key)
		if err != nil {
			t.Fatalf("get trade: %v", err)
		}
		if tr != nil && tr.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tr, _ := s.GetTrade(context.Background(), key)
	t.Fatalf("timed out waiting for state %s, have %+v", want, tr)
}

func TestLimitOrderImmediateFill(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	mock.NextState = exchange.OrderStateFilled
	req := queuedRequest(t, s, domain.OrderModeLimit, "k1")

	loop.Execute(context.Background(), req)

	waitForState(t, s, "k1", domain.StateFilled)
	if len(mock.Cancelled) != 0 {
		t.Fatalf("no cancel expected on immediate fill")
	}
	if len(mock.PlacedMarket) != 0 {
		t.Fatalf("no fallback expected on immediate fill")
	}
}

func TestLimitOrderFillsWhilePolling(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	req := queuedRequest(t, s, domain.OrderModeLimit, "k1")

	done := make(chan struct{})
	go func() {
		loop.Execute(context.Background(), req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mock.SetOrderState("order-1", exchange.OrderStateFilled)
	<-done

	waitForState(t, s, "k1", domain.StateFilled)
	if len(mock.PlacedMarket) != 0 {
		t.Fatalf("no fallback expected when the limit order fills")
	}
}

func TestLimitOrderTimeoutFallback(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	req := queuedRequest(t, s, domain.OrderModeLimit, "k1")

	// order never fills; after the timeout exactly one cancel and
	// exactly one market fallback must happen
	loop.Execute(context.Background(), req)

	waitForState(t, s, "k1", domain.StateFilled)
	if len(mock.Cancelled) != 1 {
		t.Fatalf("expected exactly one cancel, got %d", len(mock.Cancelled))
	}
	if len(mock.PlacedMarket) != 1 {
		t.Fatalf("expected exactly one market fallback, got %d", len(mock.PlacedMarket))
	}
	if len(mock.PlacedLimit) != 1 {
		t.Fatalf("expected exactly one limit order, got %d", len(mock.PlacedLimit))
	}
}

func TestLimitOrderCancelFillRace(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	req := queuedRequest(t, s, domain.OrderModeLimit, "k1")

	done := make(chan struct{})
	go func() {
		loop.Execute(context.Background(), req)
		close(done)
	}()

	// fill right around the timeout; the mock keeps filled orders
	// filled through the cancel call
	time.Sleep(55 * time.Millisecond)
	mock.SetOrderState("order-1", exchange.OrderStateFilled)
	<-done

	tr, _ := s.GetTrade(context.Background(), "k1")
	if tr.State == domain.StateFilled && len(mock.PlacedMarket) != 0 {
		t.Fatalf("filled via race must not also place a fallback")
	}
	if tr.State != domain.StateFilled && len(mock.PlacedMarket) != 1 {
		t.Fatalf("non-filled race must fall back exactly once, got %d", len(mock.PlacedMarket))
	}
}

func TestMarketOrderRejectionTerminal(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeMarket)
	req := queuedRequest(t, s, domain.OrderModeMarket, "k1")
	mock.ErrorOnNext["PlaceMarketOrder"] = exchange.ErrInsufficientFunds

	loop.Execute(context.Background(), req)

	waitForState(t, s, "k1", domain.StateFailed)
	// business rejections are terminal, no retry
	if mock.Calls["PlaceMarketOrder"] != 1 {
		t.Fatalf("expected single attempt for business rejection, got %d", mock.Calls["PlaceMarketOrder"])
	}
}

func TestMarketOrderRetriesNetworkError(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeMarket)
	req := queuedRequest(t, s, domain.OrderModeMarket, "k1")
	mock.ErrorOnNext["PlaceMarketOrder"] = &exchange.NetworkError{Op: "post order", Err: errors.New("connection reset")}

	loop.Execute(context.Background(), req)

	waitForState(t, s, "k1", domain.StateFilled)
	if mock.Calls["PlaceMarketOrder"] != 2 {
		t.Fatalf("expected retry after network error, got %d calls", mock.Calls["PlaceMarketOrder"])
	}
}

func TestExecuteSingleFlightPerKey(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	req := queuedRequest(t, s, domain.OrderModeLimit, "k1")

	// first attempt holds the key while its resting order is polled
	done := make(chan struct{})
	go func() {
		loop.Execute(context.Background(), req)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	// concurrent attempt for the same key must be dropped; without the
	// per-key gate it would see the non-terminal row and order again
	loop.Execute(context.Background(), req)
	<-done

	if mock.Calls["PlaceLimitOrder"] != 1 {
		t.Fatalf("same trade executed twice, got %d limit orders", mock.Calls["PlaceLimitOrder"])
	}
	if len(mock.Cancelled) != 1 || len(mock.PlacedMarket) != 1 {
		t.Fatalf("expected one cancel and one fallback from the single flight, got %d/%d",
			len(mock.Cancelled), len(mock.PlacedMarket))
	}
	waitForState(t, s, "k1", domain.StateFilled)
}

func TestExecuteSkipsTerminalRows(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	req := queuedRequest(t, s, domain.OrderModeLimit, "k1")
	if err := s.UpdateTradeState(context.Background(), "k1", domain.StateFilled); err != nil {
		t.Fatalf("update: %v", err)
	}

	loop.Execute(context.Background(), req)

	if mock.Calls["PlaceLimitOrder"] != 0 {
		t.Fatalf("terminal row must not be re-executed")
	}
}

func TestRecoverSubmittedFilled(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	queuedRequest(t, s, domain.OrderModeLimit, "k1")
	if err := s.UpdateTradeOrder(context.Background(), "k1", domain.StateSubmitted, "order-9"); err != nil {
		t.Fatalf("update: %v", err)
	}
	mock.SetOrderState("order-9", exchange.OrderStateFilled)

	if err := loop.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	waitForState(t, s, "k1", domain.StateFilled)
}

func TestRecoverSubmittedUnknownOrder(t *testing.T) {
	s, _, loop := setup(t, domain.OrderModeLimit)
	queuedRequest(t, s, domain.OrderModeLimit, "k1")
	if err := s.UpdateTradeOrder(context.Background(), "k1", domain.StateSubmitted, "order-gone"); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := loop.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	waitForState(t, s, "k1", domain.StateFailed)
}

func TestRecoverQueuedReexecutes(t *testing.T) {
	s, mock, loop := setup(t, domain.OrderModeLimit)
	mock.NextState = exchange.OrderStateFilled
	queuedRequest(t, s, domain.OrderModeLimit, "k1")

	if err := loop.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	waitForState(t, s, "k1", domain.StateFilled)
	if mock.Calls["PlaceLimitOrder"] != 1 {
		t.Fatalf("expected queued row to be executed once, got %d", mock.Calls["PlaceLimitOrder"])
	}
}
