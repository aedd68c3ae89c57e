package sizing

import (
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"

	"github.com/betbot/copycat/internal/domain"
)

func trade(side domain.Side, size, price float64) domain.SourceTrade {
	return domain.SourceTrade{
		Wallet:    "0xsource",
		Market:    "cond-1",
		Asset:     "token-1",
		Side:      side,
		Size:      decimal.NewFromFloat(size),
		Price:     decimal.NewFromFloat(price),
		Timestamp: 1700000000,
	}
}

func TestMinimumMode(t *testing.T) {
	cfg := Config{OrderMode: domain.OrderModeLimit, SizeMode: ModeMinimum}

	cases := []struct {
		name     string
		price    float64
		wantSize string
	}{
		// at 0.40 five shares already clear the $1 floor
		{"mid price", 0.40, "5"},
		// at 0.10 the $1 floor needs 10 shares
		{"cheap price", 0.10, "10"},
		{"very cheap", 0.03, "34"},
		{"expensive", 0.95, "5"},
		{"boundary fifth", 0.20, "5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := Compute(trade(domain.SideBuy, 100, tc.price), "k", cfg)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if req.TargetSize.String() != tc.wantSize {
				t.Fatalf("price %v: expected size %s, got %s", tc.price, tc.wantSize, req.TargetSize)
			}
		})
	}
}

func TestProportionalMode(t *testing.T) {
	cfg := Config{OrderMode: domain.OrderModeLimit, SizeMode: ModeProportional}

	req, err := Compute(trade(domain.SideSell, 123.45, 0.37), "k", cfg)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if req.TargetSize.String() != "123.45" {
		t.Fatalf("expected source size verbatim, got %s", req.TargetSize)
	}
	if req.Side != domain.SideSell {
		t.Fatalf("side must be inherited, got %s", req.Side)
	}
}

func TestFixedNotionalMode(t *testing.T) {
	cfg := Config{
		OrderMode:   domain.OrderModeMarket,
		SizeMode:    ModeFixedNotional,
		FixedAmount: decimal.NewFromInt(1),
	}

	// $1 at 0.25 buys exactly 4 shares
	req, err := Compute(trade(domain.SideBuy, 100, 0.25), "k", cfg)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if req.TargetSize.String() != "4" {
		t.Fatalf("expected 4 shares, got %s", req.TargetSize)
	}
	if req.TargetAmount.String() != "1" {
		t.Fatalf("expected $1 notional, got %s", req.TargetAmount)
	}

	// rounding down to the 0.01 granularity
	req, err = Compute(trade(domain.SideBuy, 100, 0.33), "k", cfg)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if req.TargetSize.String() != "3.03" {
		t.Fatalf("expected 3.03 shares, got %s", req.TargetSize)
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	cfg := Config{OrderMode: domain.OrderModeLimit, SizeMode: ModeMinimum}

	if _, err := Compute(trade(domain.SideBuy, 10, 0), "k", cfg); err == nil {
		t.Fatalf("expected error for zero price")
	}
	if _, err := Compute(trade("HOLD", 10, 0.5), "k", cfg); err == nil {
		t.Fatalf("expected error for bad side")
	}

	cfg.SizeMode = ModeProportional
	if _, err := Compute(trade(domain.SideBuy, 0, 0.5), "k", cfg); err == nil {
		t.Fatalf("expected error for zero source size")
	}

	cfg.SizeMode = ModeFixedNotional
	cfg.FixedAmount = decimal.Zero
	if _, err := Compute(trade(domain.SideBuy, 10, 0.5), "k", cfg); err == nil {
		t.Fatalf("expected error for zero fixed amount")
	}
}

func TestFromOrderConfig(t *testing.T) {
	cfg := FromOrderConfig("market", true, 2.5)
	if cfg.OrderMode != domain.OrderModeMarket || cfg.SizeMode != ModeFixedNotional {
		t.Fatalf("unexpected market config: %+v", cfg)
	}
	if cfg.FixedAmount.String() != "2.5" {
		t.Fatalf("unexpected fixed amount: %s", cfg.FixedAmount)
	}

	cfg = FromOrderConfig("limit", true, 0)
	if cfg.SizeMode != ModeMinimum {
		t.Fatalf("expected minimum mode, got %s", cfg.SizeMode)
	}
	cfg = FromOrderConfig("limit", false, 0)
	if cfg.SizeMode != ModeProportional {
		t.Fatalf("expected proportional mode, got %s", cfg.SizeMode)
	}
}

// **Property: 最小份额模式约束**
// 对于任何有效价格，最小份额模式的产出必须同时满足
// 平台最小份额（>= 5）和最小金额（size*price >= $1）
func TestPropertyMinimumModeConstraints(t *testing.T) {
	cfg := Config{OrderMode: domain.OrderModeLimit, SizeMode: ModeMinimum}

	property := func(priceCents int) bool {
		// 输入域约束：价格 1-99 分
		if priceCents < 1 || priceCents > 99 {
			priceCents = 1 + abs(priceCents)%99
		}
		price := float64(priceCents) / 100.0

		req, err := Compute(trade(domain.SideBuy, 50, price), "k", cfg)
		if err != nil {
			return false
		}

		if req.TargetSize.LessThan(MinShares) {
			return false
		}
		notional := req.TargetSize.Mul(decimal.NewFromFloat(price))
		return notional.GreaterThanOrEqual(MinNotional)
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatalf("property violated: %v", err)
	}
}

// **Property: 固定金额模式不超支**
// 换算出的份额在源价格下的成本永远不超过固定金额
func TestPropertyFixedNotionalNeverOverspends(t *testing.T) {
	property := func(priceCents, amountCents int) bool {
		if priceCents < 1 || priceCents > 99 {
			priceCents = 1 + abs(priceCents)%99
		}
		if amountCents < 100 || amountCents > 10000 {
			amountCents = 100 + abs(amountCents)%9900
		}
		price := float64(priceCents) / 100.0
		amount := float64(amountCents) / 100.0

		cfg := Config{
			OrderMode:   domain.OrderModeMarket,
			SizeMode:    ModeFixedNotional,
			FixedAmount: decimal.NewFromFloat(amount),
		}
		req, err := Compute(trade(domain.SideBuy, 10, price), "k", cfg)
		if err != nil {
			return false
		}

		cost := req.TargetSize.Mul(decimal.NewFromFloat(price))
		return cost.LessThanOrEqual(cfg.FixedAmount)
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatalf("property violated: %v", err)
	}
}

func abs(n int) int {
	if n < 0 {
		// 注意 math.MinInt 取负仍为负，再取模即可回到域内
		if n == -n {
			return 0
		}
		return -n
	}
	return n
}
