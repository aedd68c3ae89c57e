package exchange

import (
	"errors"
	"fmt"
)

// 交易所错误分类。调用方按类别决定重试还是终止：
// 限流与网络错误可重试，资金不足与无效订单直接终止。
var (
	ErrRateLimited       = errors.New("exchange: rate limited")
	ErrNotFound          = errors.New("exchange: not found")
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")
	ErrInvalidOrder      = errors.New("exchange: invalid order")
)

// NetworkError 网络层错误（超时、连接失败、非 2xx 且无法归类）
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("exchange: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Retryable 该错误是否值得重试
func Retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
