// Package registers 寄存器存储：host 侧 WriteRegister 的实际执行者
package registers

import (
	"context"
	"errors"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// ControlVerify 写入后回读校验，不一致时返回 WriteFault
const ControlVerify uint8 = 0x01

// DefaultSize 寄存器空间默认大小（字节）
const DefaultSize = 4096

// ErrOutOfRange 读取区间越界
var ErrOutOfRange = errors.New("register range out of bounds")

// Store 可读写的寄存器空间
type Store interface {
	WriteRegister(ctx context.Context, offset uint32, control uint8, data []byte) (ed.WriteResult, error)
	ReadRegister(ctx context.Context, offset uint32, n int) ([]byte, error)
	Size() uint32
}

// inRange 区间 [offset, offset+n) 是否落在 size 内
func inRange(offset uint32, n int, size uint32) bool {
	return n >= 0 && uint64(offset)+uint64(n) <= uint64(size)
}
