package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExecutionState 复制流水线中一笔源交易的执行状态
//
// 状态机：discovered → queued → submitted → {filled | timed-out | failed}
// timed-out 之后允许一次市价兜底（timed-out → submitted），skipped 仅用于
// 基线快照阶段标记的历史存量交易。
type ExecutionState string

const (
	StateDiscovered ExecutionState = "discovered"
	StateQueued     ExecutionState = "queued"
	StateSubmitted  ExecutionState = "submitted"
	StateFilled     ExecutionState = "filled"
	StateTimedOut   ExecutionState = "timed-out"
	StateFailed     ExecutionState = "failed"
	StateSkipped    ExecutionState = "skipped"
)

// Terminal 是否为终态
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateFilled, StateFailed, StateSkipped:
		return true
	}
	return false
}

// SourceTrade 源钱包的一笔成交（来自 Data API /trades）
type SourceTrade struct {
	Wallet    string          // 源钱包地址（已小写归一化）
	Market    string          // condition id
	Asset     string          // 条件代币 token id
	Side      Side            // 交易方向
	Size      decimal.Decimal // 成交数量（shares）
	Price     decimal.Decimal // 成交价格（USDC）
	Timestamp int64           // 成交时间（unix 秒）
	TxHash    string          // 链上交易哈希（可能为空）
	Title     string          // 市场标题（仅用于日志）
}

// Key 返回交易的全局唯一去重键
//
// 优先使用交易所提供的链上交易哈希；缺失时退化为
// (wallet, asset, side, timestamp, size, price) 元组的 sha256，
// 对不同交易保证确定且无冲突。
func (t *SourceTrade) Key() string {
	if t.TxHash != "" {
		return t.TxHash
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		t.Wallet, t.Asset, t.Side, t.Timestamp, t.Size.String(), t.Price.String())))
	return hex.EncodeToString(sum[:])
}
