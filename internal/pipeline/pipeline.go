package pipeline

import (
	"errors"
	"fmt"
	"io"
)

// ErrPipeline 管道处理失败（由某一级 Stage 返回）
var ErrPipeline = errors.New("pipeline error")

// Direction 数据方向
type Direction uint8

const (
	Outbound Direction = iota // 发送：按顺序执行
	Inbound                   // 接收：逆序执行
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Stage 对称的字节变换：同一 Stage 的 Inbound 应能还原 Outbound 的结果
type Stage interface {
	Name() string
	Outbound(p []byte) ([]byte, error)
	Inbound(p []byte) ([]byte, error)
}

// Error 记录失败的 Stage 与方向
type Error struct {
	Stage     string
	Direction Direction
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s stage %q: %v", e.Direction, e.Stage, e.Err)
}

// Unwrap 同时匹配 ErrPipeline 与底层错误
func (e *Error) Unwrap() []error { return []error{ErrPipeline, e.Err} }

// Pipeline 有序的 Stage 列表；空管道在两个方向上都是恒等变换
type Pipeline struct {
	stages []Stage
}

// New 创建管道，nil Stage 被忽略
func New(stages ...Stage) *Pipeline {
	p := &Pipeline{stages: make([]Stage, 0, len(stages))}
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	return p
}

// Append 追加一级，返回自身便于链式构造
func (p *Pipeline) Append(s Stage) *Pipeline {
	if s != nil {
		p.stages = append(p.stages, s)
	}
	return p
}

// Len 返回级数
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.stages)
}

// Names 返回各级名称（按发送顺序）
func (p *Pipeline) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Outbound 发送方向：从前往后依次处理
func (p *Pipeline) Outbound(b []byte) ([]byte, error) {
	if p == nil {
		return b, nil
	}
	var err error
	for _, s := range p.stages {
		if b, err = s.Outbound(b); err != nil {
			return nil, &Error{Stage: s.Name(), Direction: Outbound, Err: err}
		}
	}
	return b, nil
}

// Inbound 接收方向：从后往前依次处理
func (p *Pipeline) Inbound(b []byte) ([]byte, error) {
	if p == nil {
		return b, nil
	}
	var err error
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if b, err = s.Inbound(b); err != nil {
			return nil, &Error{Stage: s.Name(), Direction: Inbound, Err: err}
		}
	}
	return b, nil
}

// Close 释放持有资源的 Stage（实现 io.Closer 的，如 Zstd）
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, s := range p.stages {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
