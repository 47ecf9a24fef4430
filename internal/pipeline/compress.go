package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// 压缩级在线路上按块传输：长度 LE(4) | 块体。
// 入站侧按长度切分，一次读取可含多个块或半个块，不完整的尾部留到下次读取。

const (
	chunkHdrLen   = 4
	maxChunkBytes = 1 << 20
)

var errChunkHeader = errors.New("bad compressed chunk header")

// chunkStream 入站块切分缓冲
type chunkStream struct {
	buf []byte
}

// appendChunk 追加一个带长度前缀的块
func appendChunk(dst, body []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(body)))
	return append(dst, body...)
}

// feed 追加入站字节，对每个完整块调用 fn 并拼接其输出
// 单块解码失败不影响同批后续块，返回第一个错误；声明长度超限时清空缓冲
func (s *chunkStream) feed(p []byte, fn func(body []byte) ([]byte, error)) ([]byte, error) {
	s.buf = append(s.buf, p...)
	var (
		out      []byte
		off      int
		firstErr error
	)
	for len(s.buf)-off >= chunkHdrLen {
		size := int(binary.LittleEndian.Uint32(s.buf[off:]))
		if size > maxChunkBytes {
			s.buf = s.buf[:0]
			return nil, fmt.Errorf("%w: size %d exceeds %d", errChunkHeader, size, maxChunkBytes)
		}
		if len(s.buf)-off < chunkHdrLen+size {
			break
		}
		body := s.buf[off+chunkHdrLen : off+chunkHdrLen+size]
		off += chunkHdrLen + size
		dec, err := fn(body)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, dec...)
	}
	s.consume(off)
	return out, firstErr
}

func (s *chunkStream) consume(n int) {
	rest := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
}

// Buffered 尚未凑成完整块的字节数
func (s *chunkStream) Buffered() int { return len(s.buf) }

// Zstd 使用 zstd 帧格式压缩每个数据块
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
	in  chunkStream
}

// NewZstd 创建 zstd 级，level 取 zstd 原生级别（1..22），<=0 使用默认
func NewZstd(level int) (*Zstd, error) {
	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxChunkBytes))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (s *Zstd) Name() string { return "zstd" }

func (s *Zstd) Outbound(p []byte) ([]byte, error) {
	return appendChunk(nil, s.enc.EncodeAll(p, nil)), nil
}

func (s *Zstd) Inbound(p []byte) ([]byte, error) {
	return s.in.feed(p, func(body []byte) ([]byte, error) {
		out, err := s.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	})
}

// Buffered 等待补全的入站字节数
func (s *Zstd) Buffered() int { return s.in.Buffered() }

// Close 释放编解码器资源
func (s *Zstd) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// LZ4 块格式没有自描述长度，块体前带 3 字节：
// flag(1) 0=原样 1=lz4 | 原始长度 LE(2)
const (
	lz4Raw     byte = 0
	lz4Block   byte = 1
	lz4HdrLen       = 3
	lz4MaxSize      = 0xFFFF
)

var errLZ4Header = errors.New("bad lz4 chunk header")

// LZ4 使用 lz4 块格式压缩每个数据块，不可压缩时原样携带
type LZ4 struct {
	in chunkStream
}

// NewLZ4 创建 lz4 级，入站缓冲按连接独占
func NewLZ4() *LZ4 { return &LZ4{} }

func (*LZ4) Name() string { return "lz4" }

func (*LZ4) Outbound(p []byte) ([]byte, error) {
	if len(p) > lz4MaxSize {
		return nil, fmt.Errorf("lz4 chunk of %d bytes exceeds %d", len(p), lz4MaxSize)
	}
	body := make([]byte, lz4HdrLen+lz4.CompressBlockBound(len(p)))
	binary.LittleEndian.PutUint16(body[1:3], uint16(len(p)))
	written := 0
	if len(p) > 0 {
		var err error
		if written, err = lz4.CompressBlock(p, body[lz4HdrLen:], nil); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
	}
	if written == 0 || written >= len(p) {
		body[0] = lz4Raw
		body = append(body[:lz4HdrLen], p...)
	} else {
		body[0] = lz4Block
		body = body[:lz4HdrLen+written]
	}
	return appendChunk(nil, body), nil
}

func (s *LZ4) Inbound(p []byte) ([]byte, error) {
	return s.in.feed(p, decodeLZ4)
}

// Buffered 等待补全的入站字节数
func (s *LZ4) Buffered() int { return s.in.Buffered() }

func decodeLZ4(body []byte) ([]byte, error) {
	if len(body) < lz4HdrLen {
		return nil, errLZ4Header
	}
	size := int(binary.LittleEndian.Uint16(body[1:3]))
	data := body[lz4HdrLen:]
	switch body[0] {
	case lz4Raw:
		if len(data) != size {
			return nil, fmt.Errorf("%w: raw size %d, header says %d", errLZ4Header, len(data), size)
		}
		out := make([]byte, size)
		copy(out, data)
		return out, nil
	case lz4Block:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: flag 0x%02X", errLZ4Header, body[0])
	}
}
