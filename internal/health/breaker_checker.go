package health

import (
	"context"
	"time"

	"github.com/taoyao-code/edlink/internal/registers"
)

// BreakerChecker 寄存器写入熔断状态
// 熔断打开时 host 仍应答其它指令，只是写入回复 fault，因此记为 Degraded
type BreakerChecker struct {
	cb *registers.CircuitBreaker
}

// NewBreakerChecker 创建熔断状态检查器
func NewBreakerChecker(cb *registers.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{cb: cb}
}

func (c *BreakerChecker) Name() string { return "register_breaker" }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	start := time.Now()
	stats := c.cb.Stats()
	status := StatusHealthy
	if c.cb.State() != registers.StateClosed {
		status = StatusDegraded
	}
	return CheckResult{
		Status:  status,
		Message: stats.State,
		Details: map[string]any{"failure_count": stats.FailureCount, "trip_count": stats.TripCount},
		Latency: time.Since(start),
	}
}
