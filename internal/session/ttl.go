package session

import (
	"context"
	"log/slog"
	"time"
)

const ttlSweepInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically closes
// sessions whose database handles have sat idle past the TTL.
func StartTTLWorker(ctx context.Context, m *Manager, ttl time.Duration) {
	ticker := time.NewTicker(ttlSweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session TTL worker started", "interval", ttlSweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if closed := m.CloseIdle(ttl); closed > 0 {
					slog.Info("Session TTL sweep completed", "closed", closed)
				}
			case <-ctx.Done():
				slog.Info("Session TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
