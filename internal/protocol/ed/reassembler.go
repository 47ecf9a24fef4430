package ed

import (
	"bytes"
	"fmt"
)

// DefaultMaxBuffered 未定界数据的默认上限，帧通常只有十几个字节
const DefaultMaxBuffered = 1024

// Reassembler 处理半包/粘包的帧重组器
// 数据追加到可增长缓冲，已消费部分通过读游标跳过，不逐字节搬移
type Reassembler struct {
	buf         []byte
	r           int // 读游标：buf[r:] 为未消费数据
	maxBuffered int // 保护上限，避免畸形数据占用过多内存
}

// NewReassembler 创建帧重组器，maxBuffered<=0 时使用默认上限
func NewReassembler(maxBuffered int) *Reassembler {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}
	return &Reassembler{maxBuffered: maxBuffered}
}

// Feed 追加数据并尝试取出一帧（STX..ETX，含定界符）
//   - 无 STX：缓冲内容均为噪声，全部丢弃
//   - 有 STX 无 ETX：保留自 STX 起的数据，等待后续字节
//   - 完整帧：返回帧副本，并消费该帧及其之前的噪声
//
// 一次读取可能包含多帧，调用方应循环调用 Next 直到返回 nil
func (a *Reassembler) Feed(p []byte) ([]byte, error) {
	if len(p) > 0 {
		a.compact()
		a.buf = append(a.buf, p...)
	}
	pending := a.buf[a.r:]
	if len(pending) == 0 {
		return nil, nil
	}

	start := bytes.IndexByte(pending, STX)
	if start < 0 {
		a.Reset()
		return nil, nil
	}
	// 丢弃无效前缀（包括没有 STX 的孤立 ETX）
	a.r += start
	pending = pending[start:]

	end := bytes.IndexByte(pending[1:], ETX)
	if end < 0 {
		if len(pending) > a.maxBuffered {
			size := len(pending)
			// 丢弃当前帧头，在下一个 STX 处重新同步
			if next := bytes.IndexByte(pending[1:], STX); next >= 0 {
				a.r += 1 + next
			} else {
				a.Reset()
			}
			return nil, fmt.Errorf("%w: %d bytes without ETX (max %d)", ErrFrameTooLarge, size, a.maxBuffered)
		}
		return nil, nil
	}

	n := end + 2 // STX + ... + ETX
	frame := make([]byte, n)
	copy(frame, pending[:n])
	a.r += n
	if a.r == len(a.buf) {
		a.Reset()
	}
	return frame, nil
}

// Next 不追加数据，仅从已缓冲内容中取下一帧
func (a *Reassembler) Next() ([]byte, error) { return a.Feed(nil) }

// Buffered 返回尚未消费的字节数
func (a *Reassembler) Buffered() int { return len(a.buf) - a.r }

// Reset 清空缓冲（保留底层容量）
func (a *Reassembler) Reset() {
	a.buf = a.buf[:0]
	a.r = 0
}

// compact 读游标越过一半时把剩余数据搬到头部，摊还 O(1)
func (a *Reassembler) compact() {
	if a.r == 0 || a.r < len(a.buf)/2 {
		return
	}
	n := copy(a.buf, a.buf[a.r:])
	a.buf = a.buf[:n]
	a.r = 0
}
