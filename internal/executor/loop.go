package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange"
	"github.com/betbot/copycat/internal/sizing"
	"github.com/betbot/copycat/internal/store"
	"github.com/betbot/copycat/pkg/logger"
)

// marketRetryAttempts 市价单对可重试错误（网络、限流）的尝试次数
const marketRetryAttempts = 3

// Config 执行环路配置
type Config struct {
	Workers      int
	LimitTimeout time.Duration // 限价单等待成交的时长
	PollInterval time.Duration // 限价单状态轮询间隔
	RetryBackoff time.Duration // 市价单可重试错误的退避间隔
}

// Loop 交易执行环路
//
// 有界 worker 池消费发现环路的队列，驱动状态机
// queued → submitted → {filled | timed-out | failed}。
// 限价单超时后恰好一次撤单、恰好一次市价兜底。
type Loop struct {
	store     *store.Store
	adapter   exchange.Adapter
	sizingCfg sizing.Config
	queue     <-chan domain.CopyOrderRequest
	gate      *keyGate
	cfg       Config
}

// NewLoop 创建执行环路
func NewLoop(s *store.Store, adapter exchange.Adapter, sizingCfg sizing.Config, queue <-chan domain.CopyOrderRequest, cfg Config) *Loop {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Loop{
		store:     s,
		adapter:   adapter,
		sizingCfg: sizingCfg,
		queue:     queue,
		gate:      newKeyGate(),
		cfg:       cfg,
	}
}

// Run 启动 worker 池并阻塞到 ctx 取消
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(l.cfg.Workers)
	for i := 0; i < l.cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			l.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (l *Loop) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-l.queue:
			if !ok {
				return
			}
			l.Execute(ctx, req)
		}
	}
}

// Execute 执行一笔复制订单（导出以便恢复路径复用）
func (l *Loop) Execute(ctx context.Context, req domain.CopyOrderRequest) {
	if !l.gate.TryAcquire(req.TradeKey) {
		return
	}
	defer l.gate.Release(req.TradeKey)

	// 队列里可能残留已处理过的事件（重启重放），终态直接跳过
	row, err := l.store.GetTrade(ctx, req.TradeKey)
	if err != nil {
		logger.Errorf("读取交易 %s 失败: %v", req.TradeKey, err)
		return
	}
	if row == nil || row.State.Terminal() {
		return
	}

	log := logger.WithFields(logrus.Fields{
		"tradeKey": req.TradeKey,
		"asset":    req.Asset,
		"side":     req.Side,
		"size":     req.TargetSize.String(),
	})

	switch req.Mode {
	case domain.OrderModeMarket:
		l.executeMarket(ctx, req, log)
	default:
		l.executeLimit(ctx, req, log)
	}
}

// executeMarket 市价路径：FOK 下单，被拒绝即终态，不重试业务错误
func (l *Loop) executeMarket(ctx context.Context, req domain.CopyOrderRequest, log *logrus.Entry) {
	handle, err := l.placeMarketWithRetry(ctx, req)
	if err != nil {
		log.Warnf("市价单失败: %v", err)
		l.setState(ctx, req.TradeKey, domain.StateFailed)
		return
	}

	if err := l.store.UpdateTradeOrder(ctx, req.TradeKey, domain.StateSubmitted, handle.OrderID); err != nil {
		log.Errorf("记录订单失败: %v", err)
	}

	if handle.State == exchange.OrderStateFilled {
		l.setState(ctx, req.TradeKey, domain.StateFilled)
		log.WithField("orderId", handle.OrderID).Infof("市价单成交")
		return
	}
	// FOK 未成交即被撤销
	l.setState(ctx, req.TradeKey, domain.StateFailed)
	log.WithField("orderId", handle.OrderID).Warnf("市价单未成交")
}

// placeMarketWithRetry 市价下单，网络和限流错误做有限重试
func (l *Loop) placeMarketWithRetry(ctx context.Context, req domain.CopyOrderRequest) (*exchange.OrderHandle, error) {
	var lastErr error
	for attempt := 0; attempt < marketRetryAttempts; attempt++ {
		handle, err := l.adapter.PlaceMarketOrder(ctx, req)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		if !exchange.Retryable(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryBackoff):
		}
	}
	return nil, lastErr
}

// executeLimit 限价路径：GTC 挂单，轮询到超时后恰好一次撤单 +
// 恰好一次市价兜底
func (l *Loop) executeLimit(ctx context.Context, req domain.CopyOrderRequest, log *logrus.Entry) {
	handle, err := l.adapter.PlaceLimitOrder(ctx, req)
	if err != nil {
		log.Warnf("限价单提交失败: %v", err)
		l.setState(ctx, req.TradeKey, domain.StateFailed)
		return
	}

	if err := l.store.UpdateTradeOrder(ctx, req.TradeKey, domain.StateSubmitted, handle.OrderID); err != nil {
		log.Errorf("记录订单失败: %v", err)
	}
	log = log.WithField("orderId", handle.OrderID)

	if handle.State == exchange.OrderStateFilled {
		l.setState(ctx, req.TradeKey, domain.StateFilled)
		log.Infof("限价单立即成交")
		return
	}

	l.awaitLimitOrder(ctx, req, handle.OrderID, log)
}

// awaitLimitOrder 等待已挂出的限价单，超时走撤单 + 兜底
func (l *Loop) awaitLimitOrder(ctx context.Context, req domain.CopyOrderRequest, orderID string, log *logrus.Entry) {
	deadline := time.NewTimer(l.cfg.LimitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 进程退出：订单留在 submitted，重启后由 Recover 接管
			return
		case <-ticker.C:
			status, err := l.adapter.GetOrderStatus(ctx, orderID)
			if err != nil {
				log.Warnf("查询订单状态失败: %v", err)
				continue
			}
			switch status.State {
			case exchange.OrderStateFilled:
				l.setState(ctx, req.TradeKey, domain.StateFilled)
				log.Infof("限价单成交")
				return
			case exchange.OrderStateCancelled:
				// 外部取消，不做兜底
				l.setState(ctx, req.TradeKey, domain.StateFailed)
				log.Warnf("限价单被外部取消")
				return
			}
		case <-deadline.C:
			l.timeoutFallback(ctx, req, orderID, log)
			return
		}
	}
}

// timeoutFallback 超时处理：恰好一次撤单，撤单与成交竞态时
// 以交易所状态为准，然后恰好一次市价兜底
func (l *Loop) timeoutFallback(ctx context.Context, req domain.CopyOrderRequest, orderID string, log *logrus.Entry) {
	err := l.adapter.CancelOrder(ctx, orderID)
	if err != nil && !errors.Is(err, exchange.ErrNotFound) {
		log.Warnf("撤单失败: %v", err)
	}

	// 撤单可能与成交赛跑，撤完再确认一次
	if status, serr := l.adapter.GetOrderStatus(ctx, orderID); serr == nil && status.State == exchange.OrderStateFilled {
		l.setState(ctx, req.TradeKey, domain.StateFilled)
		log.Infof("限价单在撤单前已成交")
		return
	}

	l.setState(ctx, req.TradeKey, domain.StateTimedOut)
	log.Infof("限价单超时，转市价兜底")

	handle, err := l.placeMarketWithRetry(ctx, req)
	if err != nil {
		log.Warnf("市价兜底失败: %v", err)
		l.setState(ctx, req.TradeKey, domain.StateFailed)
		return
	}
	if err := l.store.UpdateTradeOrder(ctx, req.TradeKey, domain.StateSubmitted, handle.OrderID); err != nil {
		log.Errorf("记录兜底订单失败: %v", err)
	}
	if handle.State == exchange.OrderStateFilled {
		l.setState(ctx, req.TradeKey, domain.StateFilled)
		log.WithField("orderId", handle.OrderID).Infof("市价兜底成交")
		return
	}
	l.setState(ctx, req.TradeKey, domain.StateFailed)
	log.WithField("orderId", handle.OrderID).Warnf("市价兜底未成交")
}

func (l *Loop) setState(ctx context.Context, tradeKey string, state domain.ExecutionState) {
	if err := l.store.UpdateTradeState(ctx, tradeKey, state); err != nil {
		logger.Errorf("更新交易 %s 状态到 %s 失败: %v", tradeKey, state, err)
	}
}

// Recover 重启恢复：把上一个进程留下的非终态交易接回状态机。
// queued/discovered 重新走执行，submitted 按库里的 order_id
// 查交易所实况收敛。
func (l *Loop) Recover(ctx context.Context) error {
	// submitted：查实况
	submitted, err := l.store.ListTradesByState(ctx, domain.StateSubmitted)
	if err != nil {
		return err
	}
	for _, row := range submitted {
		l.recoverSubmitted(ctx, row)
	}

	// timed-out：撤单已经发生但兜底没来得及，补一次兜底
	timedOut, err := l.store.ListTradesByState(ctx, domain.StateTimedOut)
	if err != nil {
		return err
	}
	for _, row := range timedOut {
		req, ok := l.rebuildRequest(row)
		if !ok {
			l.setState(ctx, row.TradeKey, domain.StateFailed)
			continue
		}
		log := logger.WithFields(logrus.Fields{"tradeKey": row.TradeKey})
		log.Infof("恢复超时交易，补市价兜底")
		handle, err := l.placeMarketWithRetry(ctx, req)
		if err != nil || handle.State != exchange.OrderStateFilled {
			l.setState(ctx, row.TradeKey, domain.StateFailed)
			continue
		}
		if err := l.store.UpdateTradeOrder(ctx, row.TradeKey, domain.StateFilled, handle.OrderID); err != nil {
			log.Errorf("记录兜底订单失败: %v", err)
		}
	}

	// queued 和 discovered：重新执行
	for _, state := range []domain.ExecutionState{domain.StateQueued, domain.StateDiscovered} {
		rows, err := l.store.ListTradesByState(ctx, state)
		if err != nil {
			return err
		}
		for _, row := range rows {
			req, ok := l.rebuildRequest(row)
			if !ok {
				l.setState(ctx, row.TradeKey, domain.StateFailed)
				continue
			}
			if state == domain.StateDiscovered {
				if err := l.store.UpdateTradeState(ctx, row.TradeKey, domain.StateQueued); err != nil {
					continue
				}
			}
			logger.WithFields(logrus.Fields{"tradeKey": row.TradeKey}).Infof("恢复未完成交易，重新执行")
			l.Execute(ctx, req)
		}
	}
	return nil
}

// recoverSubmitted 按交易所实况收敛一笔 submitted 交易
func (l *Loop) recoverSubmitted(ctx context.Context, row store.SeenTrade) {
	log := logger.WithFields(logrus.Fields{"tradeKey": row.TradeKey, "orderId": row.OrderID})
	if row.OrderID == "" {
		log.Warnf("submitted 交易缺少订单号，标记失败")
		l.setState(ctx, row.TradeKey, domain.StateFailed)
		return
	}

	status, err := l.adapter.GetOrderStatus(ctx, row.OrderID)
	if err != nil {
		if errors.Is(err, exchange.ErrNotFound) {
			log.Warnf("订单在交易所不存在，标记失败")
			l.setState(ctx, row.TradeKey, domain.StateFailed)
			return
		}
		log.Warnf("恢复时查询订单失败，保持 submitted: %v", err)
		return
	}

	switch status.State {
	case exchange.OrderStateFilled:
		l.setState(ctx, row.TradeKey, domain.StateFilled)
		log.Infof("恢复：订单已成交")
	case exchange.OrderStateCancelled:
		l.setState(ctx, row.TradeKey, domain.StateFailed)
		log.Infof("恢复：订单已取消")
	default:
		// 仍在订单簿上，继续按限价流程等待
		req, ok := l.rebuildRequest(row)
		if !ok {
			l.setState(ctx, row.TradeKey, domain.StateFailed)
			return
		}
		log.Infof("恢复：订单仍在等待成交")
		go l.awaitLimitOrder(ctx, req, row.OrderID, log)
	}
}

// rebuildRequest 从落库的原始成交 JSON 重建下单请求
func (l *Loop) rebuildRequest(row store.SeenTrade) (domain.CopyOrderRequest, bool) {
	var trade domain.SourceTrade
	if row.RawJSON == "" || json.Unmarshal([]byte(row.RawJSON), &trade) != nil {
		return domain.CopyOrderRequest{}, false
	}
	req, err := sizing.Compute(trade, row.TradeKey, l.sizingCfg)
	if err != nil {
		return domain.CopyOrderRequest{}, false
	}
	return req, true
}
