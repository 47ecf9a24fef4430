package device

import (
	"sync"
	"time"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// Sampler 模拟通道采样，实现 connection.ChannelSampler
//   - 时间戳为启动以来的毫秒数，按 24 位回绕
//   - Off 返回空掩码并重新装填单次触发
//   - Continuous 每次返回全部通道
//   - OneShot 仅首次返回全部通道，之后为空直到再次 Off
type Sampler struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time
	mask  uint16
	fired bool
}

// NewSampler 创建采样器，channels 超过 16 时按 16 处理
func NewSampler(channels uint8) *Sampler {
	if channels > 16 {
		channels = 16
	}
	s := &Sampler{now: time.Now, mask: uint16(1<<channels - 1)}
	s.start = s.now()
	return s
}

// Sample 按触发模式采样
func (s *Sampler) Sample(mode ed.TraceMode) ed.ReadChannelDataResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := uint32(s.now().Sub(s.start).Milliseconds()) & ed.MaxTimestamp
	resp := ed.ReadChannelDataResponse{Timestamp: ts}
	switch mode {
	case ed.TraceContinuous:
		resp.Channels = s.mask
	case ed.TraceOneShot:
		if !s.fired {
			resp.Channels = s.mask
			s.fired = true
		}
	default:
		s.fired = false
	}
	return resp
}
