package common

import (
	"context"
	"time"
)

// RunEvery runs fn immediately and then on every tick until ctx is
// cancelled. Standardizes the ticker boilerplate shared by the wallet
// reconcile loop and the discovery loop.
func RunEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
