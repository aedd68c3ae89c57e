package domain

import "github.com/shopspring/decimal"

// OrderMode 复制订单的下单方式（来自配置）
type OrderMode string

const (
	OrderModeMarket OrderMode = "market"
	OrderModeLimit  OrderMode = "limit"
)

// Valid 是否为支持的下单方式
func (m OrderMode) Valid() bool {
	return m == OrderModeMarket || m == OrderModeLimit
}

// CopyOrderRequest 一笔待执行的复制订单（仅存在于队列中，不落库）
//
// TargetSize/TargetAmount 由 OrderSizingPolicy 计算：
// - 市价单按固定金额换算份额，TargetAmount 为下单金额
// - 限价单按最小份额或等比模式确定份额
type CopyOrderRequest struct {
	TradeKey     string
	Market       string
	Asset        string
	Side         Side
	SourceSize   decimal.Decimal
	SourcePrice  decimal.Decimal
	Mode         OrderMode
	TargetSize   decimal.Decimal
	TargetAmount decimal.Decimal
}
