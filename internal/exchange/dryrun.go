package exchange

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/pkg/logger"
)

// DryRunAdapter 纸交易适配器：读操作透传真实交易所，
// 写操作只记日志并立即返回已成交。
type DryRunAdapter struct {
	Real Adapter // 可为 nil，此时读操作也返回固定值
}

func (d *DryRunAdapter) FetchTradeHistory(ctx context.Context, wallet string, limit int) ([]domain.SourceTrade, error) {
	if d.Real != nil {
		return d.Real.FetchTradeHistory(ctx, wallet, limit)
	}
	return nil, nil
}

func (d *DryRunAdapter) CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	if d.Real != nil {
		return d.Real.CurrentPrice(ctx, asset)
	}
	return decimal.NewFromFloat(0.5), nil
}

func (d *DryRunAdapter) PlaceLimitOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error) {
	return d.logOrder("limit", req), nil
}

func (d *DryRunAdapter) PlaceMarketOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error) {
	return d.logOrder("market", req), nil
}

func (d *DryRunAdapter) logOrder(kind string, req domain.CopyOrderRequest) *OrderHandle {
	id := "dry-" + uuid.NewString()
	logger.WithFields(logrus.Fields{
		"orderId":  id,
		"kind":     kind,
		"tradeKey": req.TradeKey,
		"asset":    req.Asset,
		"side":     req.Side,
		"size":     req.TargetSize.String(),
		"price":    req.SourcePrice.String(),
	}).Infof("[DRY RUN] 模拟下单")
	return &OrderHandle{OrderID: id, State: OrderStateFilled}
}

func (d *DryRunAdapter) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	return &OrderStatus{OrderID: orderID, State: OrderStateFilled}, nil
}

func (d *DryRunAdapter) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}
