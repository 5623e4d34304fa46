package gateway

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatChecker 关闭长时间没有活动的连接
// 连接关闭后读协程退出，由 HandleWebSocket 统一上报 disconnect
type HeartbeatChecker struct {
	manager  *Manager
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewHeartbeatChecker 创建心跳检测器，默认 90s 超时、30s 检查一次
func NewHeartbeatChecker(manager *Manager, timeout, interval time.Duration) *HeartbeatChecker {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &HeartbeatChecker{
		manager:  manager,
		timeout:  timeout,
		interval: interval,
		logger:   slog.Default().With("component", "Heartbeat"),
	}
}

// Run 周期检查直到 ctx 结束（阻塞）
func (h *HeartbeatChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("Heartbeat checker started", "timeout", h.timeout, "interval", h.interval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Heartbeat checker stopped")
			return
		case now := <-ticker.C:
			if n := h.reap(now); n > 0 {
				h.logger.Info("Closed idle connections", "count", n, "remaining", h.manager.Count())
			}
		}
	}
}

// reap 关闭 now 之前 timeout 内没有活动的连接
func (h *HeartbeatChecker) reap(now time.Time) int {
	idle := h.manager.Idle(now.Add(-h.timeout))
	for _, conn := range idle {
		h.logger.Debug("Connection idle",
			"connId", string(conn.ID()),
			"remoteAddr", conn.RemoteAddr(),
			"idleFor", now.Sub(conn.LastActiveTime()))
		conn.Close()
	}
	return len(idle)
}
