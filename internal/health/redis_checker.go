package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/edlink/internal/registers"
)

// ImageProber Redis 寄存器镜像探测（registers.RedisStore）
type ImageProber interface {
	Probe(ctx context.Context) (registers.ImageStatus, error)
}

// RedisChecker 寄存器后端健康检查
// 不可达为 Unhealthy：写寄存器会全部回复 fault
type RedisChecker struct {
	store ImageProber
}

// NewRedisChecker 创建Redis健康检查器
func NewRedisChecker(store ImageProber) *RedisChecker {
	return &RedisChecker{store: store}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	st, err := c.store.Probe(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("register image unavailable: %v", err),
			Latency: time.Since(start),
		}
	}

	status, message := StatusHealthy, "ok"
	switch {
	case st.Oversized():
		status, message = StatusDegraded, "register image larger than configured size"
	case st.PoolTotal > 0 && st.PoolIdle == 0 && st.Timeouts > 0:
		status, message = StatusDegraded, "connection pool exhausted"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"key":        st.Key,
			"bytes":      st.Bytes,
			"size":       st.Size,
			"pool_total": st.PoolTotal,
			"pool_idle":  st.PoolIdle,
			"timeouts":   st.Timeouts,
		},
		Latency: time.Since(start),
	}
}
