package walletset

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange"
	"github.com/betbot/copycat/internal/store"
	"github.com/betbot/copycat/pkg/logger"
)

// baselineFetchLimit 基线快照拉取的历史成交条数。
// 比发现环路的窗口大，尽量覆盖钱包的近期存量。
const baselineFetchLimit = 100

// Manager 钱包集合管理器
//
// 每个周期把配置文件中的钱包列表与库里的持久集合对账：
// 新增钱包先做基线快照再激活，移除的钱包置为 inactive，
// 重新加回的钱包走一遍全新基线。
type Manager struct {
	store    *store.Store
	adapter  exchange.Adapter
	listPath string
}

// NewManager 创建钱包集合管理器
func NewManager(s *store.Store, adapter exchange.Adapter, listPath string) *Manager {
	return &Manager{store: s, adapter: adapter, listPath: listPath}
}

// Cycle 执行一轮对账
//
// 列表文件读不出来时跳过本轮（保持现有集合不变），
// 单个钱包的基线失败只影响该钱包，下一轮重试。
func (m *Manager) Cycle(ctx context.Context) error {
	configured, err := LoadWalletList(m.listPath)
	if err != nil {
		logger.Warnf("读取钱包列表失败，本轮跳过: %v", err)
		return err
	}

	persisted, err := m.store.ListWallets(ctx)
	if err != nil {
		return err
	}

	configuredSet := make(map[string]bool, len(configured))
	for _, addr := range configured {
		configuredSet[addr] = true
	}
	persistedMap := make(map[string]domain.WatchedWallet, len(persisted))
	for _, w := range persisted {
		persistedMap[w.Address] = w
	}

	// 新增与重新加回
	for _, addr := range configured {
		existing, known := persistedMap[addr]
		switch {
		case !known:
			if _, err := m.store.UpsertWalletPending(ctx, addr); err != nil {
				logger.Errorf("注册钱包 %s 失败: %v", addr, err)
				continue
			}
			logger.WithFields(logrus.Fields{"wallet": addr}).Infof("新增钱包，等待基线快照")
		case existing.Status == domain.WalletStatusInactive:
			// 重新加回的钱包不沿用旧水位，走全新基线
			if err := m.store.ResetWalletBaseline(ctx, addr); err != nil {
				logger.Errorf("重置钱包 %s 基线失败: %v", addr, err)
				continue
			}
			logger.WithFields(logrus.Fields{"wallet": addr}).Infof("钱包重新加回，等待基线快照")
		}
	}

	// 移除
	for _, w := range persisted {
		if !configuredSet[w.Address] && w.Status != domain.WalletStatusInactive {
			if err := m.store.DeactivateWallet(ctx, w.Address); err != nil {
				logger.Errorf("停用钱包 %s 失败: %v", w.Address, err)
				continue
			}
			recorded, _ := m.store.CountTradesByWallet(ctx, w.Address)
			logger.WithFields(logrus.Fields{
				"wallet": w.Address,
				"trades": recorded,
			}).Infof("钱包已从列表移除，停止跟单，历史保留")
		}
	}

	// 对所有 pending-baseline 的钱包做基线快照
	wallets, err := m.store.ListWallets(ctx)
	if err != nil {
		return err
	}
	for _, w := range wallets {
		if w.Status != domain.WalletStatusPendingBaseline || !configuredSet[w.Address] {
			continue
		}
		if err := m.baseline(ctx, w.Address); err != nil {
			logger.WithFields(logrus.Fields{"wallet": w.Address}).Warnf("基线快照失败，下一轮重试: %v", err)
		}
	}

	return nil
}

// baseline 给钱包做基线快照：把现有历史标记为 skipped，
// 取最大成交时间作为水位，最后激活。激活放在最后一步，
// 中途崩溃时钱包保持 pending，下一轮重做（去重保证幂等）。
func (m *Manager) baseline(ctx context.Context, addr string) error {
	trades, err := m.adapter.FetchTradeHistory(ctx, addr, baselineFetchLimit)
	if err != nil {
		return err
	}

	var watermark int64
	for i := range trades {
		t := &trades[i]
		if t.Timestamp > watermark {
			watermark = t.Timestamp
		}
		raw, _ := json.Marshal(t)
		if _, err := m.store.InsertTradeIfAbsent(ctx, t.Key(), addr, domain.StateSkipped, string(raw)); err != nil {
			return err
		}
	}
	// 钱包没有任何成交时水位保持 0，之后的成交全部跟进

	if err := m.store.ActivateWallet(ctx, addr, watermark); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"wallet":    addr,
		"watermark": watermark,
		"snapshot":  len(trades),
	}).Infof("钱包基线完成，开始跟单")
	return nil
}
