package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/edlink/internal/tcpserver"
)

// TCPChecker 调试链路监听端健康检查
type TCPChecker struct {
	server       *tcpserver.Server
	lastRejected atomic.Int64
}

// NewTCPChecker 创建TCP健康检查器
func NewTCPChecker(server *tcpserver.Server) *TCPChecker {
	return &TCPChecker{server: server}
}

// Name 返回检查器名称
func (c *TCPChecker) Name() string { return "tcp" }

// Check 未监听为 Unhealthy；自上次检查以来有调试端被拒绝（会话占用或接入过快）为 Degraded
// 会话占满是单调试端设备的常态，不视为异常
func (c *TCPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	addr := c.server.Addr()
	if addr == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "not listening", Latency: time.Since(start)}
	}

	stats := c.server.Stats()
	var rejected int64
	for _, n := range stats.Rejected {
		rejected += n
	}
	fresh := rejected - c.lastRejected.Swap(rejected)

	status, message := StatusHealthy, "ok"
	if fresh > 0 {
		status, message = StatusDegraded, "debugger connections rejected"
	}

	details := map[string]any{
		"addr":            addr.String(),
		"active_sessions": stats.Active,
		"max_sessions":    stats.Max,
		"policy":          string(stats.Policy),
		"takeovers_total": stats.Takeovers,
		"rejected_recent": fresh,
	}
	if len(stats.Sessions) > 0 {
		details["attached"] = stats.Sessions[0].RemoteAddr
	}

	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
