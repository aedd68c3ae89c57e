package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/copycat/internal/domain"
)

// 平台下单约束
var (
	// MinShares 平台最小下单份额
	MinShares = decimal.NewFromInt(5)
	// MinNotional 最小下单金额（USDC）
	MinNotional = decimal.NewFromInt(1)
	// SizeStep 份额的最小粒度
	SizeStep = decimal.NewFromFloat(0.01)
)

// Mode 跟单规模模式
type Mode string

const (
	// ModeMinimum 最小份额模式：不跟随源单规模，按平台最小要求下单
	ModeMinimum Mode = "minimum"
	// ModeProportional 等比模式：按源单份额原样复制
	ModeProportional Mode = "proportional"
	// ModeFixedNotional 固定金额模式：市价单按固定 USDC 金额换算份额
	ModeFixedNotional Mode = "fixed-notional"
)

// Config 规模策略配置
type Config struct {
	OrderMode   domain.OrderMode
	SizeMode    Mode
	FixedAmount decimal.Decimal // ModeFixedNotional 使用
}

// Compute 计算一笔源交易对应的复制订单
//
// 纯函数：输入源交易与参考价格，输出下单请求，不触网也不落库。
// 方向永远继承源交易。
func Compute(trade domain.SourceTrade, tradeKey string, cfg Config) (domain.CopyOrderRequest, error) {
	req := domain.CopyOrderRequest{
		TradeKey:    tradeKey,
		Market:      trade.Market,
		Asset:       trade.Asset,
		Side:        trade.Side,
		SourceSize:  trade.Size,
		SourcePrice: trade.Price,
		Mode:        cfg.OrderMode,
	}

	if trade.Price.LessThanOrEqual(decimal.Zero) {
		return req, fmt.Errorf("sizing: 非法价格 %s", trade.Price)
	}
	if trade.Side != domain.SideBuy && trade.Side != domain.SideSell {
		return req, fmt.Errorf("sizing: 非法方向 %q", trade.Side)
	}

	switch cfg.SizeMode {
	case ModeMinimum:
		// max(最小份额, ceil(最小金额/价格))：价格越低，需要越多份额
		// 才能满足 $1 最小金额
		byNotional := MinNotional.Div(trade.Price).Ceil()
		size := MinShares
		if byNotional.GreaterThan(size) {
			size = byNotional
		}
		req.TargetSize = size
		req.TargetAmount = size.Mul(trade.Price)

	case ModeProportional:
		if trade.Size.LessThanOrEqual(decimal.Zero) {
			return req, fmt.Errorf("sizing: 源单份额非法 %s", trade.Size)
		}
		req.TargetSize = trade.Size
		req.TargetAmount = trade.Size.Mul(trade.Price)

	case ModeFixedNotional:
		if cfg.FixedAmount.LessThanOrEqual(decimal.Zero) {
			return req, fmt.Errorf("sizing: 固定金额非法 %s", cfg.FixedAmount)
		}
		// 按粒度向下取整，避免超出固定金额
		size := cfg.FixedAmount.Div(trade.Price).Div(SizeStep).Floor().Mul(SizeStep)
		if size.LessThanOrEqual(decimal.Zero) {
			return req, fmt.Errorf("sizing: 固定金额 %s 在价格 %s 下不足一个粒度", cfg.FixedAmount, trade.Price)
		}
		req.TargetSize = size
		req.TargetAmount = cfg.FixedAmount

	default:
		return req, fmt.Errorf("sizing: 未知模式 %q", cfg.SizeMode)
	}

	return req, nil
}

// FromOrderConfig 根据下单配置推导规模模式
func FromOrderConfig(orderMode string, minShare bool, fixedAmount float64) Config {
	cfg := Config{FixedAmount: decimal.NewFromFloat(fixedAmount)}
	if orderMode == "market" {
		cfg.OrderMode = domain.OrderModeMarket
		cfg.SizeMode = ModeFixedNotional
		return cfg
	}
	cfg.OrderMode = domain.OrderModeLimit
	if minShare {
		cfg.SizeMode = ModeMinimum
	} else {
		cfg.SizeMode = ModeProportional
	}
	return cfg
}
