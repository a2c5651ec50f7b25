package remote

import (
	"context"
	"log/slog"
	"time"
)

// StartAutoRefresh はinterval毎に保存済みセッションを確認し、
// 期限が近ければ更新するgoroutineを起動する。Closeで停止する。
func (c *Client) StartAutoRefresh(interval time.Duration) {
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.refreshTick(interval)
			}
		}
	}()

	slog.Info("session auto refresh started", slog.Duration("interval", interval))
}

// refreshTick は1回分の確認処理。
func (c *Client) refreshTick(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := c.GetSession(ctx); err != nil {
		slog.Warn("session auto refresh failed", slog.String("error", err.Error()))
	}
}

// Close は自動更新goroutineを停止し、終了を待つ。複数回呼び出しても安全。
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	if c.done != nil {
		<-c.done
	}
}
