package executor

import "sync"

// keyGate 按 tradeKey 的单飞门闸
//
// 同一笔交易永远只有一个 worker 在执行，队列里出现重复
// 事件时后到者直接放弃。
type keyGate struct {
	mu     sync.Mutex
	active map[string]bool
}

func newKeyGate() *keyGate {
	return &keyGate{active: make(map[string]bool)}
}

// TryAcquire 尝试占用 key，已被占用时返回 false
func (g *keyGate) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[key] {
		return false
	}
	g.active[key] = true
	return true
}

// Release 释放 key
func (g *keyGate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}
