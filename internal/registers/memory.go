package registers

import (
	"bytes"
	"context"
	"sync"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// MemoryStore 进程内寄存器空间，多连接共享
type MemoryStore struct {
	mu  sync.RWMutex
	mem []byte
}

// NewMemoryStore 创建指定大小的寄存器空间（size 为 0 时取默认值）
func NewMemoryStore(size uint32) *MemoryStore {
	if size == 0 {
		size = DefaultSize
	}
	return &MemoryStore{mem: make([]byte, size)}
}

// Size 寄存器空间大小
func (s *MemoryStore) Size() uint32 { return uint32(len(s.mem)) }

// WriteRegister 写入寄存器，越界返回 WriteInvalidOffset
func (s *MemoryStore) WriteRegister(ctx context.Context, offset uint32, control uint8, data []byte) (ed.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return ed.WriteFault, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !inRange(offset, len(data), s.Size()) {
		return ed.WriteInvalidOffset, nil
	}
	copy(s.mem[offset:], data)
	if control&ControlVerify != 0 && !bytes.Equal(s.mem[offset:int(offset)+len(data)], data) {
		return ed.WriteFault, nil
	}
	return ed.WriteOK, nil
}

// ReadRegister 读取寄存器区间副本
func (s *MemoryStore) ReadRegister(ctx context.Context, offset uint32, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !inRange(offset, n, s.Size()) {
		return nil, ErrOutOfRange
	}
	return append([]byte(nil), s.mem[offset:int(offset)+n]...), nil
}
