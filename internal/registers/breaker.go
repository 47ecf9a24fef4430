package registers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常状态，允许请求通过
	StateOpen                  // 熔断状态，拒绝所有请求
	StateHalfOpen              // 半开状态，允许少量请求试探
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断器打开，拒绝请求
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests 半开状态请求过多
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreaker 熔断器：后端（如 Redis）连续失败时快速失败
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	lastFailTime time.Time
	tripCount    int64

	threshold   int           // 连续失败次数阈值
	timeout     time.Duration // Open → HalfOpen 的等待时间
	halfOpenMax int           // 半开状态最大试探请求数
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CircuitBreaker{
		state:       StateClosed,
		threshold:   threshold,
		timeout:     timeout,
		halfOpenMax: 4,
	}
}

// Call 执行函数，受熔断器保护
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailTime) > cb.timeout {
			cb.state = StateHalfOpen
			cb.failureCount, cb.successCount = 0, 0
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.successCount+cb.failureCount >= cb.halfOpenMax {
			return ErrTooManyRequests
		}
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failureCount++
		cb.lastFailTime = time.Now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.threshold {
			if cb.state != StateOpen {
				cb.tripCount++
			}
			cb.state = StateOpen
		}
		return
	}

	cb.successCount++
	switch cb.state {
	case StateHalfOpen:
		// 半开状态成功足够次数，恢复正常
		if cb.successCount >= cb.halfOpenMax/2 {
			cb.state = StateClosed
			cb.failureCount, cb.successCount = 0, 0
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

// State 获取当前状态
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats 获取统计信息
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		TripCount:    cb.tripCount,
	}
}

// BreakerStats 熔断器统计信息
type BreakerStats struct {
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
	TripCount    int64  `json:"trip_count"`
}

// Guarded 为寄存器存储加熔断保护
// 熔断期间直接回复 WriteFault，不再访问后端
type Guarded struct {
	Store
	cb *CircuitBreaker
}

// NewGuarded 包装寄存器存储
func NewGuarded(s Store, cb *CircuitBreaker) *Guarded {
	return &Guarded{Store: s, cb: cb}
}

// WriteRegister 受熔断器保护的写入
func (g *Guarded) WriteRegister(ctx context.Context, offset uint32, control uint8, data []byte) (ed.WriteResult, error) {
	result := ed.WriteFault
	err := g.cb.Call(func() error {
		var werr error
		result, werr = g.Store.WriteRegister(ctx, offset, control, data)
		return werr
	})
	if err != nil {
		return ed.WriteFault, err
	}
	return result, nil
}

// Breaker 返回熔断器（用于统计）
func (g *Guarded) Breaker() *CircuitBreaker { return g.cb }
