package pipeline

import (
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// Nop 恒等变换
type Nop struct{}

func (Nop) Name() string                      { return "nop" }
func (Nop) Outbound(p []byte) ([]byte, error) { return p, nil }
func (Nop) Inbound(p []byte) ([]byte, error)  { return p, nil }

// Funcs 由两个函数组成的 Stage，便于临时扩展与测试
type Funcs struct {
	StageName string
	Out       func([]byte) ([]byte, error)
	In        func([]byte) ([]byte, error)
}

func (f Funcs) Name() string { return f.StageName }

func (f Funcs) Outbound(p []byte) ([]byte, error) {
	if f.Out == nil {
		return p, nil
	}
	return f.Out(p)
}

func (f Funcs) Inbound(p []byte) ([]byte, error) {
	if f.In == nil {
		return p, nil
	}
	return f.In(p)
}

// Inspector 以 debug 级别打印经过的原始字节，不修改数据
type Inspector struct {
	logger *zap.Logger
}

// NewInspector 创建字节检查级，logger 为空时不输出
func NewInspector(logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{logger: logger}
}

func (s *Inspector) Name() string { return "inspect" }

func (s *Inspector) Outbound(p []byte) ([]byte, error) {
	s.dump(Outbound, p)
	return p, nil
}

func (s *Inspector) Inbound(p []byte) ([]byte, error) {
	s.dump(Inbound, p)
	return p, nil
}

func (s *Inspector) dump(d Direction, p []byte) {
	if ce := s.logger.Check(zap.DebugLevel, "wire bytes"); ce != nil {
		ce.Write(
			zap.String("direction", d.String()),
			zap.Int("len", len(p)),
			zap.String("hex", hex.EncodeToString(p)),
		)
	}
}

// ChunkLimit 校验级：单次收发的数据块超过上限时拒绝
type ChunkLimit struct {
	Max int
}

func (s ChunkLimit) Name() string { return "limit" }

func (s ChunkLimit) Outbound(p []byte) ([]byte, error) { return s.check(p) }

func (s ChunkLimit) Inbound(p []byte) ([]byte, error) { return s.check(p) }

func (s ChunkLimit) check(p []byte) ([]byte, error) {
	if s.Max > 0 && len(p) > s.Max {
		return nil, fmt.Errorf("chunk of %d bytes exceeds limit %d", len(p), s.Max)
	}
	return p, nil
}
