package domain

// WalletStatus 被跟踪钱包的状态
//
// pending-baseline 的钱包还没做完基线快照，不参与发现；
// inactive 的钱包已从配置列表移除，历史保留。
type WalletStatus string

const (
	WalletStatusPendingBaseline WalletStatus = "pending-baseline"
	WalletStatusActive          WalletStatus = "active"
	WalletStatusInactive        WalletStatus = "inactive"
)

// WatchedWallet 一个被跟踪的源钱包
type WatchedWallet struct {
	Address           string       // 已小写归一化的地址
	BaselineWatermark int64        // 基线水位（unix 秒），只复制严格晚于该时刻的成交
	Status            WalletStatus
}
