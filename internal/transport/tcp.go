package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCP 带读超时的 TCP 链路
type TCP struct {
	net.Conn
	readTimeout time.Duration
}

// DialTCP 连接 host；readTimeout>0 时每次读取前刷新 deadline
func DialTCP(ctx context.Context, addr string, dialTimeout, readTimeout time.Duration) (*TCP, error) {
	d := net.Dialer{Timeout: dialTimeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &TCP{Conn: c, readTimeout: readTimeout}, nil
}

func (t *TCP) Read(p []byte) (int, error) {
	if t.readTimeout > 0 {
		_ = t.Conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}
	return t.Conn.Read(p)
}
