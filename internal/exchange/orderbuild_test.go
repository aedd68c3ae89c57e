package exchange

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange/signing"
)

func TestGetOrderRawAmountsBuy(t *testing.T) {
	rc := RoundingConfig[TickSize001]

	maker, taker := getOrderRawAmounts(domain.SideBuy, 5, 0.40, rc)
	if taker != 5 {
		t.Fatalf("buy taker amount should be share size, got %v", taker)
	}
	if maker != 2.0 {
		t.Fatalf("buy maker amount should be size*price, got %v", maker)
	}
}

func TestGetOrderRawAmountsSell(t *testing.T) {
	rc := RoundingConfig[TickSize001]

	maker, taker := getOrderRawAmounts(domain.SideSell, 10.123, 0.37, rc)
	if maker != 10.12 {
		t.Fatalf("sell maker amount should round down to 2 decimals, got %v", maker)
	}
	// taker USDC amount capped at 4 decimals
	if taker != 3.7444 {
		t.Fatalf("unexpected sell taker amount: %v", taker)
	}
}

func TestParseUnits(t *testing.T) {
	got := parseUnits(2.5, signing.CollateralTokenDecimals)
	if got.Cmp(big.NewInt(2500000)) != 0 {
		t.Fatalf("expected 2500000, got %s", got)
	}
}

func TestBuildOrderSignsPayload(t *testing.T) {
	key, err := signing.PrivateKeyFromHex("4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	ob := NewOrderBuilder(key, signing.ChainPolygon, signing.SignatureTypeGnosisSafe, "0x56687bf447db6ffa42ffe2204a05edaa20f55839")

	req := domain.CopyOrderRequest{
		TradeKey:    "k",
		Asset:       "123456789",
		Side:        domain.SideBuy,
		SourcePrice: decimal.NewFromFloat(0.5),
		Mode:        domain.OrderModeLimit,
		TargetSize:  decimal.NewFromInt(5),
	}
	signed, err := ob.BuildOrder(req, 0.5, TickSize001)
	if err != nil {
		t.Fatalf("build order: %v", err)
	}
	if signed.Signature == "" || signed.Signature[:2] != "0x" {
		t.Fatalf("expected hex signature, got %q", signed.Signature)
	}
	if signed.Maker != "0x56687bf447db6ffa42ffe2204a05edaa20f55839" {
		t.Fatalf("maker must be the funder address, got %s", signed.Maker)
	}
	if signed.TakerAmount != "5000000" || signed.MakerAmount != "2500000" {
		t.Fatalf("unexpected amounts: maker=%s taker=%s", signed.MakerAmount, signed.TakerAmount)
	}
}

func TestBuildOrderRejectsBadToken(t *testing.T) {
	key, _ := signing.PrivateKeyFromHex("4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d")
	ob := NewOrderBuilder(key, signing.ChainPolygon, signing.SignatureTypeBrowser, "")

	req := domain.CopyOrderRequest{Asset: "not-a-number", Side: domain.SideBuy, TargetSize: decimal.NewFromInt(5)}
	if _, err := ob.BuildOrder(req, 0.5, TickSize001); err == nil {
		t.Fatalf("expected error for non-numeric token id")
	}
}

func TestClassifyOrderError(t *testing.T) {
	if !errors.Is(classifyOrderError("not enough balance / allowance"), ErrInsufficientFunds) {
		t.Fatalf("balance message should map to insufficient funds")
	}
	if !errors.Is(classifyOrderError("order rate limit exceeded"), ErrRateLimited) {
		t.Fatalf("rate limit message should map to rate limited")
	}
	if !errors.Is(classifyOrderError("invalid tick size"), ErrInvalidOrder) {
		t.Fatalf("unknown message should map to invalid order")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrRateLimited) {
		t.Fatalf("rate limited must be retryable")
	}
	if !Retryable(&NetworkError{Op: "x", Err: errors.New("timeout")}) {
		t.Fatalf("network errors must be retryable")
	}
	if Retryable(ErrInsufficientFunds) || Retryable(ErrInvalidOrder) {
		t.Fatalf("business rejections must not be retryable")
	}
}
