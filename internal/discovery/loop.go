package discovery

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange"
	"github.com/betbot/copycat/internal/sizing"
	"github.com/betbot/copycat/internal/store"
	"github.com/betbot/copycat/pkg/logger"
)

// Loop 交易发现环路
//
// 每轮遍历所有 active 钱包：拉取最近成交，过滤出水位之后的
// 新交易，通过 InsertTradeIfAbsent 抢占去重键，抢到的交易
// 计算下单请求后推入有界队列。队列满时阻塞，形成背压。
type Loop struct {
	store      *store.Store
	adapter    exchange.Adapter
	sizingCfg  sizing.Config
	queue      chan<- domain.CopyOrderRequest
	fetchLimit int
}

// NewLoop 创建发现环路
func NewLoop(s *store.Store, adapter exchange.Adapter, sizingCfg sizing.Config, queue chan<- domain.CopyOrderRequest, fetchLimit int) *Loop {
	return &Loop{
		store:      s,
		adapter:    adapter,
		sizingCfg:  sizingCfg,
		queue:      queue,
		fetchLimit: fetchLimit,
	}
}

// Cycle 执行一轮发现。单个钱包出错只记日志，不影响其他钱包。
func (l *Loop) Cycle(ctx context.Context) error {
	wallets, err := l.store.ListActiveWallets(ctx)
	if err != nil {
		return err
	}

	for _, w := range wallets {
		if err := l.discoverWallet(ctx, w); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WithFields(logrus.Fields{"wallet": w.Address}).Warnf("发现失败: %v", err)
		}
	}
	return nil
}

func (l *Loop) discoverWallet(ctx context.Context, w domain.WatchedWallet) error {
	trades, err := l.adapter.FetchTradeHistory(ctx, w.Address, l.fetchLimit)
	if err != nil {
		return err
	}

	// API 按时间倒序返回，这里按时间正序处理，保证入队顺序
	// 与源钱包的成交顺序一致
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp < trades[j].Timestamp
	})

	for i := range trades {
		t := &trades[i]
		// 严格晚于水位才算新交易，基线时刻的存量不重复跟进
		if t.Timestamp <= w.BaselineWatermark {
			continue
		}

		key := t.Key()
		raw, _ := json.Marshal(t)
		claimed, err := l.store.InsertTradeIfAbsent(ctx, key, w.Address, domain.StateDiscovered, string(raw))
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		req, err := sizing.Compute(*t, key, l.sizingCfg)
		if err != nil {
			// 规模算不出来（价格异常等）的交易直接终止，不进队列
			logger.WithFields(logrus.Fields{"wallet": w.Address, "tradeKey": key}).Warnf("规模计算失败: %v", err)
			if err := l.store.UpdateTradeState(ctx, key, domain.StateFailed); err != nil {
				return err
			}
			continue
		}

		if err := l.store.UpdateTradeState(ctx, key, domain.StateQueued); err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"wallet":   w.Address,
			"tradeKey": key,
			"side":     t.Side,
			"size":     req.TargetSize.String(),
			"price":    t.Price.String(),
			"title":    t.Title,
		}).Infof("发现新交易，入队")

		select {
		case l.queue <- req:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
