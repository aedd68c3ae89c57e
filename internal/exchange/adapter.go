package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/copycat/internal/domain"
)

// OrderState 交易所侧的订单状态
type OrderState string

const (
	OrderStatePending   OrderState = "pending"   // 仍在订单簿上
	OrderStateFilled    OrderState = "filled"    // 已全部成交
	OrderStateCancelled OrderState = "cancelled" // 已取消（含过期）
)

// OrderHandle 下单成功后的句柄
type OrderHandle struct {
	OrderID string
	State   OrderState
}

// OrderStatus 查询订单返回的快照
type OrderStatus struct {
	OrderID     string
	State       OrderState
	SizeMatched decimal.Decimal
}

// Adapter 交易所适配器
//
// 所有方法都接受 context 以便取消；实现负责把 HTTP 层错误
// 映射到本包的错误分类。
type Adapter interface {
	// FetchTradeHistory 拉取钱包最近的成交，按时间倒序返回
	FetchTradeHistory(ctx context.Context, wallet string, limit int) ([]domain.SourceTrade, error)

	// CurrentPrice 返回条件代币的当前中间价
	CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error)

	// PlaceLimitOrder 提交 GTC 限价单
	PlaceLimitOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error)

	// PlaceMarketOrder 提交 FOK 市价单
	PlaceMarketOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error)

	// GetOrderStatus 查询订单状态
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)

	// CancelOrder 取消订单；订单不存在时返回 ErrNotFound
	CancelOrder(ctx context.Context, orderID string) error
}
