package tcpserver

import (
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// ErrIdleTimeout 连接空闲超过 IdleTimeout
var ErrIdleTimeout = errors.New("connection idle timeout")

// ConnContext 单个 TCP 连接
// Read/Write 每次调用前刷新 deadline；读超时原样返回（net.Error.Timeout），由上层视为暂无数据
type ConnContext struct {
	s          *Server
	c          net.Conn
	id         uint64
	since      time.Time
	closed     atomic.Bool
	doneC      chan struct{}
	lastActive atomic.Int64 // unix nano
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	cc := &ConnContext{
		s:     s,
		c:     c,
		id:    s.nextConnID.Add(1),
		since: time.Now(),
		doneC: make(chan struct{}),
	}
	cc.lastActive.Store(cc.since.UnixNano())
	return cc
}

// ID 返回连接ID（单进程唯一递增）
func (cc *ConnContext) ID() uint64 { return cc.id }

// RemoteAddr 返回远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// Read 带读超时的读取
func (cc *ConnContext) Read(p []byte) (int, error) {
	if to := cc.s.cfg.ReadTimeout; to > 0 {
		_ = cc.c.SetReadDeadline(time.Now().Add(to))
	}
	n, err := cc.c.Read(p)
	if n > 0 {
		cc.lastActive.Store(time.Now().UnixNano())
		if cc.s.onRecvBytes != nil {
			cc.s.onRecvBytes(n)
		}
	}
	if err != nil && n == 0 && isTimeout(err) && cc.idle() {
		return 0, ErrIdleTimeout
	}
	return n, err
}

// idle 读超时且空闲时间超过上限
func (cc *ConnContext) idle() bool {
	limit := cc.s.cfg.IdleTimeout
	if limit <= 0 {
		return false
	}
	return time.Since(time.Unix(0, cc.lastActive.Load())) > limit
}

// Write 带写超时的同步写入
func (cc *ConnContext) Write(b []byte) (int, error) {
	if cc.closed.Load() {
		return 0, net.ErrClosed
	}
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	_ = cc.c.SetWriteDeadline(time.Now().Add(to))
	n, err := cc.c.Write(b)
	if n > 0 && cc.s.onSentBytes != nil {
		cc.s.onSentBytes(n)
	}
	return n, err
}

// Close 关闭连接并广播
func (cc *ConnContext) Close() error {
	if !cc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(cc.doneC)
	return cc.c.Close()
}

func (cc *ConnContext) info() SessionInfo {
	return SessionInfo{
		ID:         cc.id,
		RemoteAddr: cc.c.RemoteAddr().String(),
		Since:      cc.since,
		LastActive: time.Unix(0, cc.lastActive.Load()),
	}
}

// Done 返回连接关闭通知通道
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
