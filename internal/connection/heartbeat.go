package connection

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatChecker 心跳超时检测器
// 超时的连接走与正常断开相同的清理路径（回调负责触发下线处理）
type HeartbeatChecker struct {
	manager       *Manager
	timeout       time.Duration
	checkInterval time.Duration
	logger        *slog.Logger
	onTimeout     func(conn *Connection)
}

// NewHeartbeatChecker 创建心跳检测器
func NewHeartbeatChecker(manager *Manager, timeout, checkInterval time.Duration, logger *slog.Logger, onTimeout func(conn *Connection)) *HeartbeatChecker {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}

	return &HeartbeatChecker{
		manager:       manager,
		timeout:       timeout,
		checkInterval: checkInterval,
		logger:        logger,
		onTimeout:     onTimeout,
	}
}

// Start 启动心跳检测（阻塞，应在 goroutine 中调用）
func (h *HeartbeatChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.logger.Info("Heartbeat checker started",
		"timeout", h.timeout,
		"check_interval", h.checkInterval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Heartbeat checker stopped")
			return
		case <-ticker.C:
			h.checkConnections()
		}
	}
}

// checkConnections 检查所有连接的心跳是否超时
func (h *HeartbeatChecker) checkConnections() {
	conns := h.manager.GetAllConnections()
	now := time.Now()
	timeoutCount := 0

	for _, conn := range conns {
		if now.Sub(conn.LastActiveTime()) > h.timeout {
			timeoutCount++
			h.logger.Debug("Connection heartbeat timeout",
				"conn_id", conn.ID(),
				"email", conn.Email(),
				"last_active", conn.LastActiveTime())

			if h.onTimeout != nil {
				h.onTimeout(conn)
			}
			conn.Close()
		}
	}

	if timeoutCount > 0 {
		h.logger.Info("Heartbeat check completed",
			"total", len(conns),
			"timeout", timeoutCount)
	}
}
