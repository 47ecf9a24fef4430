package ed

import (
	"encoding/binary"
	"fmt"
)

// wireReader 按声明顺序读取内容区字段（小端）
// 任一读取越界后 err 置位，后续读取返回零值
type wireReader struct {
	b   []byte
	off int
	err error
}

func (r *wireReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.b) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedPayload, n, r.off, len(r.b))
		return false
	}
	return true
}

func (r *wireReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *wireReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *wireReader) u24() uint32 {
	if !r.need(3) {
		return 0
	}
	v := uint32(r.b[r.off]) | uint32(r.b[r.off+1])<<8 | uint32(r.b[r.off+2])<<16
	r.off += 3
	return v
}

func (r *wireReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

// bytes 读取 1 字节长度前缀的字节串（返回副本）
func (r *wireReader) bytes() []byte {
	n := int(r.u8())
	if !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.b[r.off:r.off+n])
	r.off += n
	return out
}

func (r *wireReader) str() string {
	return string(r.bytes())
}

// done 检查负载是否恰好读完
func (r *wireReader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, len(r.b)-r.off)
	}
	return nil
}

func appendU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendU24(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16))
}

func appendU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// appendBytes 写入 1 字节长度前缀 + 数据
func appendBytes(b []byte, field string, v []byte) ([]byte, error) {
	if len(v) > MaxFieldLen {
		return nil, fmt.Errorf("%w: %s has %d bytes (max %d)", ErrFieldTooLong, field, len(v), MaxFieldLen)
	}
	b = append(b, byte(len(v)))
	return append(b, v...), nil
}
